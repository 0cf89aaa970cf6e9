// Package feedtest writes small GTFS feeds for tests.
package feedtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Tables maps a GTFS file name to its lines, header first.
type Tables map[string][]string

// Clone returns a deep copy so tests can tweak one table.
func (t Tables) Clone() Tables {
	out := make(Tables, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Default is a two-platform tram stop used across the test suites.
//
// 2025-06-02 is a Monday. Service WD runs Monday to Friday, WE on weekends.
// On 2025-06-03 WD is removed and HOL added.
func Default() Tables {
	return Tables{
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"S1,Zikova,50.1001,14.3901",
			"S2,Zikova,50.1002,14.3902",
			"S3,Vítězné náměstí,50.1010,14.4000",
		},
		"routes.txt": {
			"route_id,agency_id,route_short_name,route_long_name,route_type",
			"R3,DPP,3,,0",
			"R8,DPP,8,,0",
			"R25,DPP,25,,0",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,trip_headsign,direction_id",
			"R3,WD,T1,Sídliště Ďáblice,0",
			"R3,WD,T2,Sídliště Ďáblice,0",
			"R3,WD,T3,Nádraží Holešovice,1",
			"R8,WD,T4,Starý Hloubětín,0",
			"R8,WD,T5,Vozovna Střešovice,1",
			"R25,WE,T6,Bílá Hora,0",
			"R3,HOL,T7,Lehovec,0",
			"R3,WD,T8,Sídliště Ďáblice,0",
			"R25,WD,T9,Bílá Hora,0",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"T1,08:00:00,08:00:00,S1,1",
			"T1,08:04:00,08:04:00,S3,2",
			"T2,08:10:00,08:10:00,S1,1",
			"T3,08:05:00,08:05:00,S2,1",
			"T4,08:02:00,08:02:00,S1,1",
			"T5,08:01:00,08:01:00,S1,1",
			"T6,09:00:00,09:00:00,S1,1",
			"T7,08:03:00,08:03:00,S1,1",
			"T8,23:55:00,23:55:00,S1,1",
			"T9,0:10:00,0:10:00,S2,1",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WD,1,1,1,1,1,0,0,20250101,20251231",
			"WE,0,0,0,0,0,1,1,20250101,20251231",
			"HOL,0,0,0,0,0,0,0,20250101,20251231",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"WD,20250603,2",
			"HOL,20250603,1",
		},
	}
}

// Write stores the tables in a fresh temporary directory and returns its path.
func Write(t testing.TB, tables Tables) string {
	t.Helper()
	dir := t.TempDir()
	for name, lines := range tables {
		if lines == nil {
			continue
		}
		data := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}
