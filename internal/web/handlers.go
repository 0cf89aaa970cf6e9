package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/tramboard/internal/departures"
	"github.com/danpilch/tramboard/internal/monitor"
)

//go:embed templates/board.html
var templateFS embed.FS

var boardTemplate = template.Must(template.ParseFS(templateFS, "templates/board.html"))

type boardPage struct {
	Snapshot       monitor.Snapshot
	RefreshSeconds int
	Clock          string
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	page := boardPage{
		Snapshot:       s.board.Snapshot(),
		RefreshSeconds: int(s.opts.RefreshInterval.Seconds()),
	}
	if !page.Snapshot.Now.IsZero() {
		page.Clock = page.Snapshot.Now.Format("15:04")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := boardTemplate.Execute(w, page); err != nil {
		s.logger.WithField("error", err).Error("failed to render board")
	}
}

// ErrorResponse is the JSON body of failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
}

type DepartureJSON struct {
	Time          string    `json:"time"`
	Label         string    `json:"label,omitempty"`
	Route         string    `json:"route"`
	Direction     string    `json:"direction"`
	DepartureTime string    `json:"departure_time"`
	TripID        string    `json:"trip_id"`
	StopID        string    `json:"stop_id"`
	At            time.Time `json:"at"`
}

type WeatherJSON struct {
	Temperature float64 `json:"temperature"`
	Code        int     `json:"code"`
	Description string  `json:"description"`
}

type DeparturesResponse struct {
	Query      string          `json:"query"`
	Station    string          `json:"station"`
	Now        time.Time       `json:"now"`
	Status     string          `json:"status"`
	Departures []DepartureJSON `json:"departures"`
	Weather    *WeatherJSON    `json:"weather,omitempty"`
}

// handleDepartures serves the current board, or an ad hoc query when any of
// station, at, count or distinct is given.
func (s *Server) handleDepartures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var snap monitor.Snapshot
	if q.Has("station") || q.Has("at") || q.Has("count") || q.Has("distinct") {
		current := s.board.Snapshot()

		station := q.Get("station")
		if station == "" {
			station = current.Query
		}

		now := time.Now()
		if raw := q.Get("at"); raw != "" {
			t, err := time.ParseInLocation(departures.TimestampLayout, raw, s.board.Location())
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: (&departures.InvalidTimestampError{Raw: raw, Err: err}).Error()})
				return
			}
			now = t
		}

		count := s.opts.Count
		if raw := q.Get("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "count must be an integer"})
				return
			}
			count = n
		}

		mode := s.opts.Mode
		if raw := q.Get("distinct"); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "distinct must be a boolean"})
				return
			}
			mode = departures.ModeFor(b)
		}

		snap = s.board.Lookup(station, now, count, mode)
	} else {
		snap = s.board.Snapshot()
	}

	if snap.Status == monitor.StatusError {
		writeJSON(w, errorStatus(snap.Err), ErrorResponse{Error: snap.Error})
		return
	}

	writeJSON(w, http.StatusOK, toResponse(snap))
}

func errorStatus(err error) int {
	var notFound *departures.StationNotFoundError
	var badTime *departures.InvalidTimestampError
	var badCount *departures.InvalidCountError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &badTime), errors.As(err, &badCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(snap monitor.Snapshot) DeparturesResponse {
	resp := DeparturesResponse{
		Query:      snap.Query,
		Station:    snap.Station,
		Now:        snap.Now,
		Status:     string(snap.Status),
		Departures: make([]DepartureJSON, 0, len(snap.Rows)),
	}
	for i, row := range snap.Rows {
		d := snap.Departures[i]
		resp.Departures = append(resp.Departures, DepartureJSON{
			Time:          row.Time,
			Label:         row.Label,
			Route:         row.Route,
			Direction:     row.Direction,
			DepartureTime: d.DepartureTime,
			TripID:        d.TripID,
			StopID:        d.StopID,
			At:            d.At,
		})
	}
	if snap.Weather != nil {
		resp.Weather = &WeatherJSON{
			Temperature: snap.Weather.Temperature,
			Code:        snap.Weather.Code,
			Description: snap.Weather.Description(),
		}
	}
	return resp
}

type StopJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleStops(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	stops := s.stops.Stops()
	if q != "" {
		stops = s.stops.FindStopsByName(q)
	}

	out := make([]StopJSON, 0, len(stops))
	for _, st := range stops {
		out = append(out, StopJSON{ID: st.ID, Name: st.Name})
	}

	s.logger.WithFields(logrus.Fields{
		"q":       q,
		"matches": len(out),
	}).Debug("stop lookup")

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
