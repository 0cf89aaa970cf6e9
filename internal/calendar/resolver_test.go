package calendar

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/danpilch/tramboard/internal/feed"
)

type fakeSource struct {
	calendars  []feed.ServiceCalendar
	exceptions []feed.ServiceException
}

func (f fakeSource) Calendars() []feed.ServiceCalendar { return f.calendars }

func (f fakeSource) ExceptionsOn(dateKey int) []feed.ServiceException {
	var out []feed.ServiceException
	for _, e := range f.exceptions {
		if e.Date == dateKey {
			out = append(out, e)
		}
	}
	return out
}

func weekdays(days ...time.Weekday) [7]bool {
	var out [7]bool
	for _, d := range days {
		out[d] = true
	}
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, 20250602, DateKey(day(2025, time.June, 2)))
	assert.Equal(t, 20251231, DateKey(day(2025, time.December, 31)))
}

func TestActiveServices(t *testing.T) {
	src := fakeSource{
		calendars: []feed.ServiceCalendar{
			{ServiceID: "WD", StartDate: 20250101, EndDate: 20251231,
				Days: weekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)},
			{ServiceID: "WE", StartDate: 20250101, EndDate: 20251231, Days: weekdays(time.Saturday, time.Sunday)},
			{ServiceID: "SUMMER", StartDate: 20250701, EndDate: 20250831,
				Days: weekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)},
			{ServiceID: "HOL", StartDate: 20250101, EndDate: 20251231},
		},
		exceptions: []feed.ServiceException{
			{ServiceID: "WD", Date: 20250603, Type: feed.ExceptionRemoved},
			{ServiceID: "HOL", Date: 20250603, Type: feed.ExceptionAdded},
			// Added outside every calendar window.
			{ServiceID: "EXTRA", Date: 20260101, Type: feed.ExceptionAdded},
			// Both kinds for one pair, Added wins.
			{ServiceID: "WE", Date: 20250607, Type: feed.ExceptionRemoved},
			{ServiceID: "WE", Date: 20250607, Type: feed.ExceptionAdded},
		},
	}
	r := NewResolver(src)

	tests := []struct {
		name string
		date time.Time
		want []string
	}{
		{name: "weekday", date: day(2025, time.June, 2), want: []string{"WD"}},
		{name: "removed and added", date: day(2025, time.June, 3), want: []string{"HOL"}},
		{name: "weekend", date: day(2025, time.June, 8), want: []string{"WE"}},
		{name: "added beats removed", date: day(2025, time.June, 7), want: []string{"WE"}},
		{name: "seasonal window", date: day(2025, time.July, 1), want: []string{"SUMMER", "WD"}},
		{name: "window end inclusive", date: day(2025, time.August, 29), want: []string{"SUMMER", "WD"}},
		{name: "outside all windows", date: day(2026, time.January, 1), want: []string{"EXTRA"}},
		{name: "nothing runs", date: day(2026, time.January, 2), want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(r.ActiveServices(tt.date)))
		})
	}
}

func TestActiveServicesIsDeterministic(t *testing.T) {
	r := NewResolver(fakeSource{calendars: []feed.ServiceCalendar{
		{ServiceID: "A", StartDate: 20250101, EndDate: 20251231, Days: weekdays(time.Monday)},
		{ServiceID: "A", StartDate: 20250101, EndDate: 20251231, Days: weekdays(time.Monday)},
	}})

	first := r.ActiveServices(day(2025, time.June, 2))
	second := r.ActiveServices(day(2025, time.June, 2))
	assert.Equal(t, first, second)
	assert.Len(t, first, 1)
}
