package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/api/weather"
	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/format"
	"github.com/danpilch/tramboard/internal/metrics"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Querier answers departure queries.
type Querier interface {
	NextDepartures(station, asOf string, count int, mode departures.Mode) (*departures.Result, error)
	Location() *time.Location
}

// Notifier delivers imminent departure alerts.
type Notifier interface {
	SendDepartureSoon(station, route, headsign, departureTime string, minutes int) error
}

// Snapshot is everything the board shows at one refresh.
type Snapshot struct {
	Query      string
	Station    string
	Now        time.Time
	Status     Status
	Error      string
	Err        error
	Grouped    bool
	Rows       []format.Row
	Cards      []format.Card
	Departures []departures.Departure
	Weather    *weather.Reading
}

type BoardOptions struct {
	Station  string
	Count    int
	Mode     departures.Mode
	LeadTime time.Duration
}

type BoardMonitor struct {
	engine   Querier
	notifier Notifier
	weather  *WeatherMonitor
	metrics  *metrics.Collector
	logger   *logrus.Logger
	opts     BoardOptions

	mu       sync.RWMutex
	snapshot Snapshot
	notified map[string]time.Time // departure instant by trip@service date
}

// NewBoardMonitor creates a monitor. notifier, weather and collector may be nil.
func NewBoardMonitor(engine Querier, opts BoardOptions, notifier Notifier, wm *WeatherMonitor, collector *metrics.Collector, logger *logrus.Logger) *BoardMonitor {
	return &BoardMonitor{
		engine:   engine,
		notifier: notifier,
		weather:  wm,
		metrics:  collector,
		logger:   logger,
		opts:     opts,
		snapshot: Snapshot{Query: opts.Station, Station: opts.Station, Status: StatusEmpty},
		notified: make(map[string]time.Time),
	}
}

func (m *BoardMonitor) Location() *time.Location { return m.engine.Location() }

// PruneNotificationState forgets alerts for departures that left before now.
func (m *BoardMonitor) PruneNotificationState(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for key, at := range m.notified {
		if at.Before(now) {
			delete(m.notified, key)
			pruned++
		}
	}
	return pruned
}

// Snapshot returns the board computed by the last Refresh.
func (m *BoardMonitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Refresh queries the engine as of now and replaces the current snapshot.
func (m *BoardMonitor) Refresh(now time.Time) Snapshot {
	snap := m.Lookup(m.opts.Station, now, m.opts.Count, m.opts.Mode)

	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LastRefreshUnixTime.Set(float64(now.Unix()))
	}

	if snap.Status == StatusOK {
		m.checkImminent(snap.Station, snap.Departures, snap.Now)
	}

	return snap
}

// Lookup builds a snapshot for an arbitrary query without storing it.
func (m *BoardMonitor) Lookup(station string, now time.Time, count int, mode departures.Mode) Snapshot {
	now = now.In(m.engine.Location())
	snap := Snapshot{
		Query:   station,
		Station: station,
		Now:     now,
		Grouped: mode == departures.ModeDistinct,
	}
	if m.weather != nil {
		if r, _, ok := m.weather.Current(); ok {
			snap.Weather = &r
		}
	}

	start := time.Now()
	res, err := m.engine.NextDepartures(station, now.Format(departures.TimestampLayout), count, mode)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		snap.Status = StatusError
		snap.Error = err.Error()
		snap.Err = err
		m.observe(metrics.OutcomeError, elapsed)

		var notFound *departures.StationNotFoundError
		if errors.As(err, &notFound) {
			m.logger.WithField("station", station).Warn("station not found")
		} else {
			m.logger.WithFields(logrus.Fields{
				"station": station,
				"error":   err,
			}).Error("departure query failed")
		}
		return snap
	case res.Empty():
		snap.Status = StatusEmpty
		snap.Station = res.Station
		m.observe(metrics.OutcomeEmpty, elapsed)
		return snap
	}

	snap.Status = StatusOK
	snap.Station = res.Station
	snap.Departures = res.Departures
	snap.Rows = format.Rows(res.Departures, now)
	if snap.Grouped {
		snap.Cards = format.GroupByRoute(snap.Rows)
	}
	m.observe(metrics.OutcomeOK, elapsed)

	m.logger.WithFields(logrus.Fields{
		"station":    res.Station,
		"departures": len(res.Departures),
		"mode":       mode.String(),
	}).Debug("board refreshed")

	return snap
}

func (m *BoardMonitor) observe(outcome string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.ObserveQuery(outcome, d)
	}
}

func (m *BoardMonitor) checkImminent(station string, deps []departures.Departure, now time.Time) {
	if m.notifier == nil || m.opts.LeadTime <= 0 {
		return
	}

	for _, d := range deps {
		until := d.At.Sub(now)
		if until < 0 || until > m.opts.LeadTime {
			continue
		}

		key := d.TripID + "@" + d.ServiceDate.Format("20060102")
		m.mu.Lock()
		_, alreadyNotified := m.notified[key]
		if !alreadyNotified {
			m.notified[key] = d.At
		}
		m.mu.Unlock()

		if alreadyNotified {
			continue
		}

		minutes := int(until.Minutes())
		short, _ := format.Annotate(d, now)
		m.logger.WithFields(logrus.Fields{
			"trip":      d.TripID,
			"route":     d.RouteShortName,
			"headsign":  d.Headsign,
			"departure": d.DepartureTime,
			"minutes":   minutes,
		}).Info("departure imminent")

		if err := m.notifier.SendDepartureSoon(station, d.RouteShortName, d.Headsign, short, minutes); err != nil {
			if m.metrics != nil {
				m.metrics.NotificationErrors.Inc()
			}
			m.logger.WithFields(logrus.Fields{
				"trip":  d.TripID,
				"error": err,
			}).Error("failed to send departure notification")
			continue
		}
		if m.metrics != nil {
			m.metrics.NotificationsSent.Inc()
		}
	}
}
