// Package departures computes the next scheduled departures from a station.
package departures

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/feed"
)

// TimestampLayout is the accepted asOf format.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	startOfDay = "00:00:00"
	endOfDay   = "24:00:00"
	daySeconds = 24 * 60 * 60
)

type Mode int

const (
	// ModeFirstN returns the first count departures in time order.
	ModeFirstN Mode = iota
	// ModeDistinct returns the earliest departure of every route and direction.
	ModeDistinct
)

func (m Mode) String() string {
	switch m {
	case ModeFirstN:
		return "first_n"
	case ModeDistinct:
		return "distinct"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFor maps the group-by-route flag to a Mode.
func ModeFor(groupByRoute bool) Mode {
	if groupByRoute {
		return ModeDistinct
	}
	return ModeFirstN
}

// Exclusion hides trips of Route heading to Headsign. An empty Route matches every route.
type Exclusion struct {
	Route    string
	Headsign string
}

// Departure is one row of a result.
type Departure struct {
	DepartureTime  string // HH:MM:SS as scheduled
	RouteShortName string
	Headsign       string
	TripID         string
	StopID         string
	ServiceDate    time.Time // midnight of the service-day running the trip
	At             time.Time // absolute departure instant
}

// Result is the answer to a successful query. Zero departures is a valid,
// empty answer for a known station.
type Result struct {
	Station    string
	Departures []Departure
}

func (r *Result) Empty() bool { return len(r.Departures) == 0 }

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Station: r.Station}
	out.Departures = append([]Departure(nil), r.Departures...)
	return out
}

type Options struct {
	Location   *time.Location
	Exclusions []Exclusion
	// DistinctLimit truncates ModeDistinct results to count.
	DistinctLimit bool
	// ServiceDayOverlap shows trips of the previous service-day that run past
	// 24:00:00 on the calendar day they physically depart.
	ServiceDayOverlap bool
	CacheSize         int
}

// FeedStore is the part of feed.Store the engine reads.
type FeedStore interface {
	FindStopsByName(substr string) []feed.Stop
	TripsForServices(serviceIDs map[string]struct{}) []feed.Trip
	StopTimesAtOrAfter(stopIDs []string, tripIDs map[string]struct{}, threshold string) []feed.Departure
}

type ServiceResolver interface {
	ActiveServices(date time.Time) map[string]struct{}
}

// Engine answers departure queries. It is safe for concurrent use.
type Engine struct {
	store    FeedStore
	services ServiceResolver
	loc      *time.Location
	opts     Options
	excluded map[Exclusion]struct{}
	cache    *queryCache
	logger   *logrus.Logger
}

func NewEngine(store FeedStore, services ServiceResolver, opts Options, logger *logrus.Logger) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	excluded := make(map[Exclusion]struct{}, len(opts.Exclusions))
	for _, x := range opts.Exclusions {
		excluded[x] = struct{}{}
	}
	return &Engine{
		store:    store,
		services: services,
		loc:      loc,
		opts:     opts,
		excluded: excluded,
		cache:    newQueryCache(opts.CacheSize),
		logger:   logger,
	}
}

// Location is the time zone asOf timestamps are read in.
func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) CacheStats() CacheStats { return e.cache.stats() }

// NextDepartures returns the next departures from stations whose name contains
// station, as of the local timestamp asOf (TimestampLayout).
//
// Errors are *StationNotFoundError, *InvalidTimestampError or *InvalidCountError.
// Identical arguments are answered from an LRU cache.
func (e *Engine) NextDepartures(station, asOf string, count int, mode Mode) (*Result, error) {
	key := cacheKey{station: station, asOf: asOf, count: count, mode: mode}
	if entry, ok := e.cache.get(key); ok {
		return entry.result.clone(), entry.err
	}

	res, err := e.compute(station, asOf, count, mode)
	e.cache.set(key, cacheEntry{result: res, err: err})
	return res.clone(), err
}

func (e *Engine) compute(station, asOf string, count int, mode Mode) (*Result, error) {
	at, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(asOf), e.loc)
	if err != nil {
		return nil, &InvalidTimestampError{Raw: asOf, Err: err}
	}
	if count <= 0 {
		return nil, &InvalidCountError{Count: count}
	}

	var stops []feed.Stop
	if strings.TrimSpace(station) != "" {
		stops = e.store.FindStopsByName(station)
	}
	if len(stops) == 0 {
		return nil, &StationNotFoundError{Query: station}
	}
	stopIDs := make([]string, len(stops))
	for i, s := range stops {
		stopIDs[i] = s.ID
	}

	limit := count
	if mode == ModeDistinct {
		limit = 0
	}

	today := midnight(at)
	rows := e.window(stopIDs, today, at.Format("15:04:05"), limit)
	sameDay := len(rows)
	if mode == ModeDistinct {
		rows = distinct(rows)
	}

	// A later distinct pair may only run after midnight, so Distinct always looks ahead.
	if mode == ModeDistinct || len(rows) < count {
		nextLimit := 0
		if mode == ModeFirstN {
			nextLimit = count - len(rows)
		}
		rows = append(rows, e.window(stopIDs, today.AddDate(0, 0, 1), startOfDay, nextLimit)...)
	}

	switch mode {
	case ModeDistinct:
		rows = distinct(rows)
		if e.opts.DistinctLimit && len(rows) > count {
			rows = rows[:count]
		}
	default:
		if len(rows) > count {
			rows = rows[:count]
		}
	}

	e.logger.WithFields(logrus.Fields{
		"station":  station,
		"as_of":    asOf,
		"count":    count,
		"mode":     mode.String(),
		"stops":    len(stopIDs),
		"same_day": sameDay,
		"rows":     len(rows),
	}).Debug("departures computed")

	return &Result{Station: stops[0].Name, Departures: rows}, nil
}

// window returns the departures physically leaving on day at or after from.
func (e *Engine) window(stopIDs []string, day time.Time, from string, limit int) []Departure {
	if !e.opts.ServiceDayOverlap {
		return e.fetch(stopIDs, day, from, "", limit)
	}

	// Each service-day contributes its rows before 24:00:00, the previous
	// service-day contributes its rows past 24:00:00.
	own := e.fetch(stopIDs, day, from, endOfDay, limit)
	carried := e.fetch(stopIDs, day.AddDate(0, 0, -1), shiftDay(from), "", limit)
	return mergeByInstant(own, carried, limit)
}

// fetch returns the departures of trips running on serviceDate with
// from <= departure_time < until, exclusions removed, capped at limit when positive.
func (e *Engine) fetch(stopIDs []string, serviceDate time.Time, from, until string, limit int) []Departure {
	services := e.services.ActiveServices(serviceDate)
	if len(services) == 0 {
		return nil
	}
	trips := e.store.TripsForServices(services)
	tripIDs := make(map[string]struct{}, len(trips))
	for _, t := range trips {
		tripIDs[t.ID] = struct{}{}
	}

	var out []Departure
	for _, d := range e.store.StopTimesAtOrAfter(stopIDs, tripIDs, from) {
		if until != "" && d.StopTime.DepartureTime >= until {
			break
		}
		if e.isExcluded(d.Trip) {
			continue
		}
		row, ok := e.toDeparture(d, serviceDate)
		if !ok {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (e *Engine) isExcluded(t feed.Trip) bool {
	if len(e.excluded) == 0 {
		return false
	}
	if _, ok := e.excluded[Exclusion{Route: t.RouteShortName, Headsign: t.Headsign}]; ok {
		return true
	}
	_, ok := e.excluded[Exclusion{Headsign: t.Headsign}]
	return ok
}

func (e *Engine) toDeparture(d feed.Departure, serviceDate time.Time) (Departure, bool) {
	secs, err := feed.SecondsOf(d.StopTime.DepartureTime)
	if err != nil {
		return Departure{}, false
	}
	y, m, day := serviceDate.Date()
	raw := d.StopTime.DepartureTime
	if e.opts.ServiceDayOverlap && secs >= daySeconds {
		raw = clock(secs % daySeconds)
	}
	return Departure{
		DepartureTime:  raw,
		RouteShortName: d.Trip.RouteShortName,
		Headsign:       d.Trip.Headsign,
		TripID:         d.Trip.ID,
		StopID:         d.StopTime.StopID,
		ServiceDate:    serviceDate,
		At:             time.Date(y, m, day, 0, 0, secs, 0, e.loc),
	}, true
}

// distinct keeps the first row of every route and headsign pair.
func distinct(rows []Departure) []Departure {
	type pair struct{ route, headsign string }
	seen := make(map[pair]struct{}, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := pair{r.RouteShortName, r.Headsign}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func mergeByInstant(a, b []Departure, limit int) []Departure {
	out := make([]Departure, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		if limit > 0 && len(out) == limit {
			break
		}
		if j >= len(b) || (i < len(a) && !b[j].At.Before(a[i].At)) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// shiftDay moves an HH:MM:SS threshold into the previous service-day's overnight range.
func shiftDay(hms string) string {
	secs, err := feed.SecondsOf(hms)
	if err != nil {
		return endOfDay
	}
	return clock(secs + daySeconds)
}

func clock(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
