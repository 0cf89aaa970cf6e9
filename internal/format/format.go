// Package format turns departure rows into board fields.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danpilch/tramboard/internal/departures"
)

// Row is a departure ready to be displayed.
type Row struct {
	Time      string // HH:MM
	Label     string // "(+K min)" or empty
	Route     string
	Direction string
	At        time.Time
}

// Card groups the rows of one route.
type Card struct {
	Route string
	Rows  []Row
}

// ParseAnnotation splits "HH:MM:SS (H:MM:SS)" into the short time and a
// minutes label. Anything it cannot read yields no label.
func ParseAnnotation(s string) (short, label string) {
	i := strings.Index(s, " (")
	if i < 0 {
		return s, ""
	}
	timePart, durPart := s[:i], s[i+2:]

	short = timePart
	if len(short) > 5 {
		short = short[:5]
	}

	clean := strings.ReplaceAll(strings.ReplaceAll(durPart, ")", ""), " ", "")
	// Multi-day durations read like "1 day, 2:00:00".
	if strings.Contains(clean, ",") {
		return short, ""
	}

	parts := strings.Split(clean, ":")
	if len(parts) != 3 {
		return short, ""
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return short, ""
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return short, ""
	}

	total := h*60 + m
	if total == 0 {
		return short, ""
	}
	return short, fmt.Sprintf("(+%d min)", total)
}

// Countdown renders d as H:MM:SS, prefixed with whole days when d spans
// more than a day or is negative ("-1 day, 23:55:00"). Sub-second parts are floored.
func Countdown(d time.Duration) string {
	total := int64(d / time.Second)
	if d < 0 && d%time.Second != 0 {
		total--
	}
	days := total / 86400
	rem := total % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	body := fmt.Sprintf("%d:%02d:%02d", rem/3600, rem/60%60, rem%60)
	if days == 0 {
		return body
	}
	unit := "days"
	if days == 1 || days == -1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %s", days, unit, body)
}

// Annotate returns the short display time of d and its time-to-departure label relative to now.
func Annotate(d departures.Departure, now time.Time) (string, string) {
	return ParseAnnotation(d.DepartureTime + " (" + Countdown(d.At.Sub(now)) + ")")
}

// Rows formats every departure of a result.
func Rows(deps []departures.Departure, now time.Time) []Row {
	out := make([]Row, 0, len(deps))
	for _, d := range deps {
		short, label := Annotate(d, now)
		out = append(out, Row{
			Time:      short,
			Label:     label,
			Route:     d.RouteShortName,
			Direction: d.Headsign,
			At:        d.At,
		})
	}
	return out
}

// GroupByRoute groups rows into one card per route, ordered by route number
// with non-numeric routes last. Row order inside a card is preserved.
func GroupByRoute(rows []Row) []Card {
	var cards []Card
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.Route]
		if !ok {
			i = len(cards)
			index[r.Route] = i
			cards = append(cards, Card{Route: r.Route})
		}
		cards[i].Rows = append(cards[i].Rows, r)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return routeKey(cards[i].Route) < routeKey(cards[j].Route)
	})
	return cards
}

func routeKey(route string) int {
	n, err := strconv.Atoi(strings.TrimSpace(route))
	if err != nil {
		return 999
	}
	return n
}
