// Package calendar decides which GTFS services run on a given day.
package calendar

import (
	"time"

	"github.com/danpilch/tramboard/internal/feed"
)

// Source provides the calendar.txt and calendar_dates.txt rows.
type Source interface {
	Calendars() []feed.ServiceCalendar
	ExceptionsOn(dateKey int) []feed.ServiceException
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// DateKey returns the YYYYMMDD integer of t's calendar date.
func DateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// ActiveServices returns the services running on date's calendar day.
// An Added exception always wins, a Removed exception beats the weekly pattern.
func (r *Resolver) ActiveServices(date time.Time) map[string]struct{} {
	key := DateKey(date)
	weekday := date.Weekday()

	active := make(map[string]struct{})
	for _, c := range r.src.Calendars() {
		if c.Covers(key) && c.RunsOn(weekday) {
			active[c.ServiceID] = struct{}{}
		}
	}

	exceptions := r.src.ExceptionsOn(key)
	for _, e := range exceptions {
		if e.Type == feed.ExceptionRemoved {
			delete(active, e.ServiceID)
		}
	}
	for _, e := range exceptions {
		if e.Type == feed.ExceptionAdded {
			active[e.ServiceID] = struct{}{}
		}
	}
	return active
}
