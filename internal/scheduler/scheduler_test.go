package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/tramboard/internal/api/weather"
	"github.com/danpilch/tramboard/internal/calendar"
	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/feed"
	"github.com/danpilch/tramboard/internal/feed/feedtest"
	"github.com/danpilch/tramboard/internal/monitor"
)

type countingNotifier struct {
	mu    sync.Mutex
	trips []string
}

func (n *countingNotifier) SendDepartureSoon(station, route, headsign, departureTime string, minutes int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trips = append(n.trips, route+" "+headsign)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.trips)
}

type fakeWeather struct{ calls atomic.Int32 }

func (f *fakeWeather) Current(ctx context.Context) (weather.Reading, error) {
	f.calls.Add(1)
	return weather.Reading{Temperature: 21, Code: 0}, nil
}

func newBoard(t *testing.T, logger *logrus.Logger, n monitor.Notifier, wm *monitor.WeatherMonitor, lead time.Duration) *monitor.BoardMonitor {
	t.Helper()
	store, err := feed.Load(feedtest.Write(t, feedtest.Default()))
	require.NoError(t, err)
	engine := departures.NewEngine(store, calendar.NewResolver(store), departures.Options{Location: time.UTC}, logger)
	opts := monitor.BoardOptions{Station: "Zikova", Count: 3, LeadTime: lead}
	return monitor.NewBoardMonitor(engine, opts, n, wm, nil, logger)
}

func TestTickPrunesOnDayChange(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := &countingNotifier{}
	s := NewScheduler(newBoard(t, logger, n, nil, 2*time.Minute), nil, Options{}, logger)

	clock := time.Date(2025, time.June, 2, 7, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.tick()
	s.tick()
	assert.Equal(t, 2, n.count())

	// Tuesday runs the holiday service.
	clock = time.Date(2025, time.June, 3, 8, 1, 0, 0, time.UTC)
	s.tick()
	assert.Equal(t, 3, n.count())
	assert.Equal(t, "3 Lehovec", n.trips[2])

	var prunes int
	for _, e := range hook.AllEntries() {
		if e.Message == "day changed, pruning notifications" {
			prunes++
			assert.Equal(t, 2, e.Data["pruned"])
		}
	}
	assert.Equal(t, 1, prunes)
}

func TestAlertAcrossMidnightIsSentOnce(t *testing.T) {
	logger, _ := test.NewNullLogger()
	n := &countingNotifier{}
	s := NewScheduler(newBoard(t, logger, n, nil, 15*time.Minute), nil, Options{}, logger)

	// Thursday evening already sees Friday's 00:10 departure in its next-day window.
	clock := time.Date(2025, time.June, 5, 23, 58, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.tick()
	require.Equal(t, 1, n.count())
	assert.Equal(t, "25 Bílá Hora", n.trips[0])

	clock = time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC)
	s.tick()
	clock = time.Date(2025, time.June, 6, 0, 5, 0, 0, time.UTC)
	s.tick()
	assert.Equal(t, 1, n.count())
}

func TestStartRefreshesBoardAndWeather(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := &fakeWeather{}
	wm := monitor.NewWeatherMonitor(src, nil, logger)
	board := newBoard(t, logger, nil, wm, 2*time.Minute)

	s := NewScheduler(board, wm, Options{RefreshInterval: 10 * time.Millisecond, WeatherInterval: time.Hour}, logger)
	s.now = func() time.Time { return time.Date(2025, time.June, 2, 7, 59, 0, 0, time.UTC) }

	s.Start(context.Background())

	assert.Eventually(t, func() bool {
		snap := board.Snapshot()
		return snap.Status == monitor.StatusOK && snap.Weather != nil
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, "Zikova", board.Snapshot().Station)
}

func TestStopsOnContextCancel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewScheduler(newBoard(t, logger, nil, nil, 2*time.Minute), nil, Options{RefreshInterval: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, "scheduler stopped: context cancelled", hook.LastEntry().Message)
}
