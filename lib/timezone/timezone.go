package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
}

// Midnight returns the start of the given calendar date in district
// local time. The SCAQMD publishes everything in district local time,
// so date arithmetic has to happen in America/Los_Angeles no matter
// where the process actually runs.
func Midnight(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location)
}

// Noon returns 12:00 on the given calendar date in district local time.
func Noon(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, Location)
}
