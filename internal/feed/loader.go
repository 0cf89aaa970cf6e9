package feed

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingTable  = errors.New("table not found")
	ErrMissingColumn = errors.New("required column missing")
)

// LoadError describes why a feed could not be loaded.
type LoadError struct {
	Table  string
	Column string
	Line   int
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("loading %s line %d column %s: %v", e.Table, e.Line, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("loading %s column %s: %v", e.Table, e.Column, e.Err)
	case e.Table != "":
		return fmt.Sprintf("loading %s: %v", e.Table, e.Err)
	default:
		return fmt.Sprintf("loading feed: %v", e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

var weekdayColumns = [7]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// Load reads the GTFS tables from a directory or a .zip archive.
func Load(path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	if info.IsDir() {
		return LoadFS(os.DirFS(path))
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("opening archive: %w", err)}
	}
	defer zr.Close()
	return LoadFS(zr)
}

// LoadFS reads the GTFS tables from the root of fsys.
func LoadFS(fsys fs.FS) (*Store, error) {
	b := newBuilder()

	steps := []struct {
		table    string
		required []string
		row      func(record) error
	}{
		{"stops.txt", []string{"stop_id", "stop_name"}, b.addStop},
		{"routes.txt", []string{"route_id", "route_short_name"}, b.addRoute},
		{"trips.txt", []string{"route_id", "service_id", "trip_id", "trip_headsign"}, b.addTrip},
		{"stop_times.txt", []string{"trip_id", "stop_id", "departure_time"}, b.addStopTime},
		{"calendar.txt", append([]string{"service_id", "start_date", "end_date"}, weekdayColumns[:]...), b.addCalendar},
		{"calendar_dates.txt", []string{"service_id", "date", "exception_type"}, b.addException},
	}
	for _, s := range steps {
		if err := readTable(fsys, s.table, s.required, s.row); err != nil {
			return nil, err
		}
	}

	return b.build(), nil
}

type record struct {
	cols map[string]int
	row  []string
	line int
}

func (r record) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

// fieldError is returned by row handlers and annotated with table and line by readTable.
type fieldError struct {
	column string
	err    error
}

func (e *fieldError) Error() string { return e.column + ": " + e.err.Error() }

func readTable(fsys fs.FS, name string, required []string, fn func(record) error) error {
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadError{Table: name, Err: ErrMissingTable}
		}
		return &LoadError{Table: name, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			err = errors.New("empty file")
		}
		return &LoadError{Table: name, Err: err}
	}
	cols := makeIndex(header)
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return &LoadError{Table: name, Column: c, Err: ErrMissingColumn}
		}
	}

	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return &LoadError{Table: name, Line: line, Err: err}
		}
		if isBlank(row) {
			continue
		}
		if err := fn(record{cols: cols, row: row, line: line}); err != nil {
			var fe *fieldError
			if errors.As(err, &fe) {
				return &LoadError{Table: name, Column: fe.column, Line: line, Err: fe.err}
			}
			return &LoadError{Table: name, Line: line, Err: err}
		}
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func requireValue(r record, col string) (string, error) {
	v := r.get(col)
	if v == "" {
		return "", &fieldError{column: col, err: errors.New("empty value")}
	}
	return v, nil
}

func parseDateKey(r record, col string) (int, error) {
	v, err := requireValue(r, col)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, &fieldError{column: col, err: fmt.Errorf("invalid date %q", v)}
	}
	if _, err := time.Parse("20060102", v); err != nil {
		return 0, &fieldError{column: col, err: fmt.Errorf("invalid date %q", v)}
	}
	n, _ := strconv.Atoi(v)
	return n, nil
}

// NormalizeTime zero-pads a GTFS H:MM:SS time so that string order matches
// chronological order within a service-day.
func NormalizeTime(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid time %q", s)
	}
	var n [3]int
	for i, p := range parts {
		if p == "" || (i > 0 && len(p) != 2) || strings.TrimLeft(p, "0123456789") != "" {
			return "", fmt.Errorf("invalid time %q", s)
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid time %q", s)
		}
		n[i] = v
	}
	if n[0] > 99 || n[1] > 59 || n[2] > 59 {
		return "", fmt.Errorf("invalid time %q", s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", n[0], n[1], n[2]), nil
}

// SecondsOf converts a normalized HH:MM:SS time into seconds since the start of the service-day.
func SecondsOf(t string) (int, error) {
	norm, err := NormalizeTime(t)
	if err != nil {
		return 0, err
	}
	h, _ := strconv.Atoi(norm[0:2])
	m, _ := strconv.Atoi(norm[3:5])
	s, _ := strconv.Atoi(norm[6:8])
	return h*3600 + m*60 + s, nil
}
