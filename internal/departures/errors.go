package departures

import "fmt"

// StationNotFoundError is returned when no stop name contains the query.
type StationNotFoundError struct {
	Query string
}

func (e *StationNotFoundError) Error() string {
	return fmt.Sprintf("no station found matching %q", e.Query)
}

// InvalidTimestampError is returned when asOf is not in TimestampLayout.
type InvalidTimestampError struct {
	Raw string
	Err error
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: date format must be YYYY-MM-DD HH:MM:SS", e.Raw)
}

func (e *InvalidTimestampError) Unwrap() error { return e.Err }

// InvalidCountError is returned for a non-positive result count.
type InvalidCountError struct {
	Count int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("invalid result count %d: must be positive", e.Count)
}
