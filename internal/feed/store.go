package feed

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Store holds a loaded feed. It is read-only after Load and safe for concurrent use.
type Store struct {
	stops       []Stop
	foldedNames []string
	routes      map[string]Route
	trips       map[string]Trip
	byService   map[string][]string   // service_id -> trip_ids
	byStop      map[string][]StopTime // stop_id -> stop times ordered by departure_time
	calendars   []ServiceCalendar
	exceptions  map[int][]ServiceException // date -> exceptions
	stopTimeCnt int
}

type builder struct {
	s         *Store
	tripOrder []string
}

func newBuilder() *builder {
	return &builder{s: &Store{
		routes:     map[string]Route{},
		trips:      map[string]Trip{},
		byService:  map[string][]string{},
		byStop:     map[string][]StopTime{},
		exceptions: map[int][]ServiceException{},
	}}
}

func (b *builder) addStop(r record) error {
	id, err := requireValue(r, "stop_id")
	if err != nil {
		return err
	}
	b.s.stops = append(b.s.stops, Stop{ID: id, Name: r.get("stop_name")})
	return nil
}

func (b *builder) addRoute(r record) error {
	id, err := requireValue(r, "route_id")
	if err != nil {
		return err
	}
	b.s.routes[id] = Route{ID: id, ShortName: r.get("route_short_name")}
	return nil
}

func (b *builder) addTrip(r record) error {
	id, err := requireValue(r, "trip_id")
	if err != nil {
		return err
	}
	serviceID, err := requireValue(r, "service_id")
	if err != nil {
		return err
	}
	routeID, err := requireValue(r, "route_id")
	if err != nil {
		return err
	}
	if _, dup := b.s.trips[id]; !dup {
		b.tripOrder = append(b.tripOrder, id)
	}
	// routes.txt is read first, so the route short name is known here.
	b.s.trips[id] = Trip{
		ID:             id,
		RouteID:        routeID,
		ServiceID:      serviceID,
		Headsign:       r.get("trip_headsign"),
		RouteShortName: b.s.routes[routeID].ShortName,
	}
	return nil
}

func (b *builder) addStopTime(r record) error {
	raw := r.get("departure_time")
	if raw == "" {
		// Untimed stop, nothing to show on a board.
		return nil
	}
	dep, err := NormalizeTime(raw)
	if err != nil {
		return &fieldError{column: "departure_time", err: err}
	}
	tripID, err := requireValue(r, "trip_id")
	if err != nil {
		return err
	}
	stopID, err := requireValue(r, "stop_id")
	if err != nil {
		return err
	}
	b.s.byStop[stopID] = append(b.s.byStop[stopID], StopTime{TripID: tripID, StopID: stopID, DepartureTime: dep})
	b.s.stopTimeCnt++
	return nil
}

func (b *builder) addCalendar(r record) error {
	id, err := requireValue(r, "service_id")
	if err != nil {
		return err
	}
	c := ServiceCalendar{ServiceID: id}
	if c.StartDate, err = parseDateKey(r, "start_date"); err != nil {
		return err
	}
	if c.EndDate, err = parseDateKey(r, "end_date"); err != nil {
		return err
	}
	for day, col := range weekdayColumns {
		switch r.get(col) {
		case "1":
			c.Days[day] = true
		case "0":
		default:
			return &fieldError{column: col, err: fmt.Errorf("invalid flag %q", r.get(col))}
		}
	}
	b.s.calendars = append(b.s.calendars, c)
	return nil
}

func (b *builder) addException(r record) error {
	id, err := requireValue(r, "service_id")
	if err != nil {
		return err
	}
	date, err := parseDateKey(r, "date")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(r.get("exception_type"))
	if err != nil || (ExceptionType(n) != ExceptionAdded && ExceptionType(n) != ExceptionRemoved) {
		return &fieldError{column: "exception_type", err: errors.New("must be 1 or 2")}
	}
	b.s.exceptions[date] = append(b.s.exceptions[date], ServiceException{ServiceID: id, Date: date, Type: ExceptionType(n)})
	return nil
}

func (b *builder) build() *Store {
	s := b.s
	fold := cases.Fold()
	s.foldedNames = make([]string, len(s.stops))
	for i, st := range s.stops {
		s.foldedNames[i] = fold.String(st.Name)
	}
	for _, id := range b.tripOrder {
		t := s.trips[id]
		s.byService[t.ServiceID] = append(s.byService[t.ServiceID], id)
	}
	for stopID, times := range s.byStop {
		sort.SliceStable(times, func(i, j int) bool { return times[i].DepartureTime < times[j].DepartureTime })
		s.byStop[stopID] = times
	}
	return s
}

// FindStopsByName returns the stops whose name contains substr, ignoring case,
// in feed order.
func (s *Store) FindStopsByName(substr string) []Stop {
	q := cases.Fold().String(strings.TrimSpace(substr))
	var out []Stop
	for i, name := range s.foldedNames {
		if strings.Contains(name, q) {
			out = append(out, s.stops[i])
		}
	}
	return out
}

// Stops returns every stop in feed order.
func (s *Store) Stops() []Stop {
	out := make([]Stop, len(s.stops))
	copy(out, s.stops)
	return out
}

// Trip looks up a trip by id.
func (s *Store) Trip(id string) (Trip, bool) {
	t, ok := s.trips[id]
	return t, ok
}

// TripsForServices returns the trips that run under any of the given services.
func (s *Store) TripsForServices(serviceIDs map[string]struct{}) []Trip {
	ids := make([]string, 0, len(serviceIDs))
	for id := range serviceIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Trip
	for _, svc := range ids {
		for _, tripID := range s.byService[svc] {
			out = append(out, s.trips[tripID])
		}
	}
	return out
}

// StopTimesAtOrAfter returns the departures at stopIDs whose trip is in tripIDs
// and whose departure_time is not before threshold, ordered by departure_time.
func (s *Store) StopTimesAtOrAfter(stopIDs []string, tripIDs map[string]struct{}, threshold string) []Departure {
	var out []Departure
	seen := make(map[string]struct{}, len(stopIDs))
	for _, stopID := range stopIDs {
		if _, dup := seen[stopID]; dup {
			continue
		}
		seen[stopID] = struct{}{}

		times := s.byStop[stopID]
		start := sort.Search(len(times), func(i int) bool { return times[i].DepartureTime >= threshold })
		for _, st := range times[start:] {
			if _, ok := tripIDs[st.TripID]; !ok {
				continue
			}
			out = append(out, Departure{StopTime: st, Trip: s.trips[st.TripID]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StopTime.DepartureTime < out[j].StopTime.DepartureTime
	})
	return out
}

// Calendars returns the calendar.txt rows.
func (s *Store) Calendars() []ServiceCalendar { return s.calendars }

// ExceptionsOn returns the calendar_dates.txt rows for dateKey (YYYYMMDD).
func (s *Store) ExceptionsOn(dateKey int) []ServiceException { return s.exceptions[dateKey] }

func (s *Store) Stats() Stats {
	exc := 0
	for _, e := range s.exceptions {
		exc += len(e)
	}
	return Stats{
		Stops:      len(s.stops),
		Routes:     len(s.routes),
		Trips:      len(s.trips),
		StopTimes:  s.stopTimeCnt,
		Calendars:  len(s.calendars),
		Exceptions: exc,
	}
}
