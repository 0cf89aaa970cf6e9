package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/monitor"
)

type Options struct {
	RefreshInterval time.Duration
	WeatherInterval time.Duration
}

type Scheduler struct {
	board   *monitor.BoardMonitor
	weather *monitor.WeatherMonitor
	opts    Options
	logger  *logrus.Logger
	now     func() time.Time

	mu         sync.Mutex
	currentDay string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewScheduler creates the board refresh loop. weather may be nil.
func NewScheduler(board *monitor.BoardMonitor, weather *monitor.WeatherMonitor, opts Options, logger *logrus.Logger) *Scheduler {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Minute
	}
	if opts.WeatherInterval <= 0 {
		opts.WeatherInterval = 30 * time.Minute
	}
	return &Scheduler{
		board:   board,
		weather: weather,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"refresh_interval": s.opts.RefreshInterval.String(),
		"weather":          s.weather != nil,
	}).Info("scheduler started")

	s.wg.Add(1)
	go s.run(ctx)

	if s.weather != nil {
		s.wg.Add(1)
		go s.runWeather(ctx)
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped: context cancelled")
			return
		case <-s.stopCh:
			s.logger.Info("scheduler stopped: stop signal received")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// runWeather refreshes weather on its own cadence so a slow fetch never delays the board.
func (s *Scheduler) runWeather(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.WeatherInterval)
	defer ticker.Stop()

	s.refreshWeather(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.refreshWeather(ctx)
		}
	}
}

func (s *Scheduler) refreshWeather(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.weather.CheckWeather(ctx); err != nil {
		s.logger.WithField("error", err).Warn("weather refresh failed, keeping last reading")
	}
}

func (s *Scheduler) tick() {
	now := s.now().In(s.board.Location())
	day := now.Format("2006-01-02")

	s.mu.Lock()
	dayChanged := s.currentDay != "" && s.currentDay != day
	s.currentDay = day
	s.mu.Unlock()

	if dayChanged {
		pruned := s.board.PruneNotificationState(now)
		s.logger.WithFields(logrus.Fields{
			"day":    day,
			"pruned": pruned,
		}).Info("day changed, pruning notifications")
	}

	snap := s.board.Refresh(now)

	s.logger.WithFields(logrus.Fields{
		"station": snap.Station,
		"status":  string(snap.Status),
		"rows":    len(snap.Rows),
	}).Debug("board tick")
}
