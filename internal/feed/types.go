package feed

import "time"

// Stop is a row of stops.txt. Platforms of one station usually share a name.
type Stop struct {
	ID   string
	Name string
}

// Route is a row of routes.txt.
type Route struct {
	ID        string
	ShortName string
}

// Trip is a row of trips.txt enriched with its route's short name.
type Trip struct {
	ID             string
	RouteID        string
	ServiceID      string
	Headsign       string
	RouteShortName string
}

// StopTime is a row of stop_times.txt. DepartureTime is zero-padded HH:MM:SS and
// may exceed 24:00:00 for trips that run past midnight within their service-day.
type StopTime struct {
	TripID        string
	StopID        string
	DepartureTime string
}

// ServiceCalendar is a row of calendar.txt. Dates are YYYYMMDD integers.
type ServiceCalendar struct {
	ServiceID string
	StartDate int
	EndDate   int
	Days      [7]bool // indexed by time.Weekday
}

// Covers reports whether dateKey falls inside the validity window.
func (c ServiceCalendar) Covers(dateKey int) bool {
	return c.StartDate <= dateKey && dateKey <= c.EndDate
}

// RunsOn reports whether the weekly pattern includes the weekday.
func (c ServiceCalendar) RunsOn(weekday time.Weekday) bool {
	return c.Days[weekday]
}

type ExceptionType int

// exception_type values from calendar_dates.txt.
const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

func (t ExceptionType) String() string {
	switch t {
	case ExceptionAdded:
		return "added"
	case ExceptionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ServiceException is a row of calendar_dates.txt.
type ServiceException struct {
	ServiceID string
	Date      int
	Type      ExceptionType
}

// Departure pairs a stop time with the trip it belongs to.
type Departure struct {
	StopTime StopTime
	Trip     Trip
}

// Stats holds row counts of a loaded feed.
type Stats struct {
	Stops      int
	Routes     int
	Trips      int
	StopTimes  int
	Calendars  int
	Exceptions int
}
