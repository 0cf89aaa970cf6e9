package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/tramboard/internal/api/weather"
	"github.com/danpilch/tramboard/internal/calendar"
	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/feed"
	"github.com/danpilch/tramboard/internal/feed/feedtest"
	"github.com/danpilch/tramboard/internal/metrics"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEngine(t *testing.T) *departures.Engine {
	t.Helper()
	store, err := feed.Load(feedtest.Write(t, feedtest.Default()))
	require.NoError(t, err)
	return departures.NewEngine(store, calendar.NewResolver(store), departures.Options{Location: time.UTC}, quietLogger())
}

type sentAlert struct {
	station, route, headsign, departure string
	minutes                             int
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
	err  error
}

func (f *fakeNotifier) SendDepartureSoon(station, route, headsign, departureTime string, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentAlert{station, route, headsign, departureTime, minutes})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func at(hms string) time.Time {
	t, err := time.ParseInLocation(departures.TimestampLayout, "2025-06-02 "+hms, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "zikova", Count: 3}, nil, nil, nil, quietLogger())

	snap := m.Refresh(at("07:59:00"))
	assert.Equal(t, StatusOK, snap.Status)
	assert.Equal(t, "Zikova", snap.Station)
	assert.Equal(t, "zikova", snap.Query)
	assert.False(t, snap.Grouped)
	assert.Empty(t, snap.Cards)
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, "08:00", snap.Rows[0].Time)
	assert.Equal(t, "(+1 min)", snap.Rows[0].Label)
	assert.Equal(t, "3", snap.Rows[0].Route)
	assert.Equal(t, "Sídliště Ďáblice", snap.Rows[0].Direction)

	assert.Equal(t, snap, m.Snapshot())
}

func TestRefreshGroupsDistinctResults(t *testing.T) {
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Zikova", Count: 3, Mode: departures.ModeDistinct}, nil, nil, nil, quietLogger())

	snap := m.Refresh(at("07:59:00"))
	require.Equal(t, StatusOK, snap.Status)
	assert.True(t, snap.Grouped)
	require.NotEmpty(t, snap.Cards)
	assert.Equal(t, "3", snap.Cards[0].Route)
	for _, c := range snap.Cards {
		for _, r := range c.Rows {
			assert.Equal(t, c.Route, r.Route)
		}
	}
}

func TestRefreshStatuses(t *testing.T) {
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Nowhere", Count: 3}, nil, nil, nil, quietLogger())
	snap := m.Refresh(at("07:59:00"))
	assert.Equal(t, StatusError, snap.Status)
	assert.Contains(t, snap.Error, `"Nowhere"`)
	assert.Empty(t, snap.Rows)

	m = NewBoardMonitor(newEngine(t), BoardOptions{Station: "vítězné", Count: 3}, nil, nil, nil, quietLogger())
	saturday := time.Date(2025, time.June, 7, 9, 0, 0, 0, time.UTC)
	snap = m.Refresh(saturday)
	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Equal(t, "Vítězné náměstí", snap.Station)
	assert.Empty(t, snap.Error)
}

func TestLookupDoesNotReplaceSnapshot(t *testing.T) {
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Zikova", Count: 3}, nil, nil, nil, quietLogger())
	m.Refresh(at("07:59:00"))

	other := m.Lookup("vítězné", at("07:59:00"), 1, departures.ModeFirstN)
	assert.Equal(t, "Vítězné náměstí", other.Station)
	assert.Equal(t, "Zikova", m.Snapshot().Station)
}

func TestImminentDeparturesNotifyOnce(t *testing.T) {
	n := &fakeNotifier{}
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Zikova", Count: 3, LeadTime: 2 * time.Minute}, n, nil, nil, quietLogger())

	m.Refresh(at("07:59:00"))
	require.Equal(t, 2, n.count())
	assert.Equal(t, sentAlert{"Zikova", "3", "Sídliště Ďáblice", "08:00", 1}, n.sent[0])
	assert.Equal(t, sentAlert{"Zikova", "8", "Vozovna Střešovice", "08:01", 2}, n.sent[1])

	m.Refresh(at("07:59:00"))
	assert.Equal(t, 2, n.count())

	m.Refresh(at("08:00:30"))
	require.Equal(t, 3, n.count())
	assert.Equal(t, "Starý Hloubětín", n.sent[2].headsign)

	// Only the 08:00 departure has left; the others must stay announced.
	assert.Equal(t, 1, m.PruneNotificationState(at("08:00:30")))
	m.Refresh(at("08:00:30"))
	assert.Equal(t, 3, n.count())

	assert.Equal(t, 2, m.PruneNotificationState(at("08:03:00")))
	assert.Zero(t, m.PruneNotificationState(at("08:03:00")))
}

func TestNotificationFailureIsNotRetried(t *testing.T) {
	n := &fakeNotifier{err: errors.New("pushover down")}
	collector := metrics.NewCollector(nil, feed.Stats{}, time.Minute)
	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Zikova", Count: 1, LeadTime: 5 * time.Minute}, n, nil, collector, quietLogger())

	m.Refresh(at("07:59:00"))
	m.Refresh(at("07:59:30"))
	assert.Equal(t, 1, n.count())
}

type fakeWeather struct {
	reading weather.Reading
	err     error
	calls   int
}

func (f *fakeWeather) Current(ctx context.Context) (weather.Reading, error) {
	f.calls++
	return f.reading, f.err
}

func TestWeatherMonitorKeepsLastReading(t *testing.T) {
	src := &fakeWeather{reading: weather.Reading{Temperature: 18.5, Code: 2}}
	wm := NewWeatherMonitor(src, nil, quietLogger())

	_, _, ok := wm.Current()
	assert.False(t, ok)

	require.NoError(t, wm.CheckWeather(context.Background()))
	r, updated, ok := wm.Current()
	require.True(t, ok)
	assert.Equal(t, 18.5, r.Temperature)
	assert.False(t, updated.IsZero())

	src.err = errors.New("timeout")
	src.reading = weather.Reading{}
	assert.Error(t, wm.CheckWeather(context.Background()))
	r, _, ok = wm.Current()
	assert.True(t, ok)
	assert.Equal(t, 2, r.Code)
}

func TestSnapshotCarriesWeather(t *testing.T) {
	wm := NewWeatherMonitor(&fakeWeather{reading: weather.Reading{Temperature: -3, Code: 71}}, nil, quietLogger())
	require.NoError(t, wm.CheckWeather(context.Background()))

	m := NewBoardMonitor(newEngine(t), BoardOptions{Station: "Zikova", Count: 1}, nil, wm, nil, quietLogger())
	snap := m.Refresh(at("07:59:00"))
	require.NotNil(t, snap.Weather)
	assert.Equal(t, "Snow fall: Slight ❄️", snap.Weather.Description())
}
