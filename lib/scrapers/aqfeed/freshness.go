package aqfeed

import (
	"time"

	"scaqmd-backend/lib/timezone"
)

// ValidAsOf derives the snapshot timestamp from an arbitrary record of
// the table. The feed does not actually guarantee every station shares
// one observation time; upstream has always published homogeneous
// snapshots and we lean on that assumption rather than second-guessing
// it here.
func ValidAsOf(table SourceTable) time.Time {
	for _, rec := range table {
		return rec.ObservedAt
	}
	return time.Time{}
}

// NextRefresh computes when the source is expected to have new data,
// from the data's own timestamp. Deriving this from fetch wall-clock
// time would turn the cache into a plain timer and re-fetch pages that
// haven't changed.
//
// The current feed updates on the hour: the next refresh is the start
// of the UTC hour strictly after validAsOf. The forecast feed appears
// around noon district local time on the day before the forecast date,
// so the next refresh is noon local time on the forecast date itself.
func NextRefresh(validAsOf time.Time, mode Mode) time.Time {
	if mode == ModeForecast {
		local := validAsOf.In(timezone.Location)
		return timezone.Noon(local.Year(), local.Month(), local.Day()).UTC()
	}
	return validAsOf.UTC().Truncate(time.Hour).Add(time.Hour)
}
