package aqfeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"scaqmd-backend/lib/timezone"
)

const (
	colStation     = "sra"
	colName        = "name"
	colAQI         = "aqi"
	colCurrentTime = "current_datetime"
	colDate        = "date"
	colCategory    = "category_desc"
	colPollutant   = "pollutant_desc"
	colLink        = "link"

	// polygon geometry exported by ArcGIS alongside the data
	colShapeArea   = "Shape__Area"
	colShapeLength = "Shape__Length"
)

func requiredColumns(mode Mode) []string {
	if mode == ModeForecast {
		return []string{colStation, colName, colAQI, colDate, colCategory, colPollutant}
	}
	return []string{colStation, colName, colAQI, colCurrentTime, colCategory, colPollutant, colLink}
}

// ParseTable parses a feed payload into a station-keyed table. It is
// pure: the same payload always yields a structurally equal table.
func ParseTable(data []byte, mode Mode) (SourceTable, error) {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	// the default FieldsPerRecord makes every row match the header's
	// field count, so a truncated row fails instead of yielding a
	// partial record with a zero station id and timestamp
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(text)))

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header row: %v", ErrMalformedInput, err)
	}
	index := make(map[string]bool, len(header))
	for _, name := range header {
		index[name] = true
	}
	for _, required := range requiredColumns(mode) {
		if !index[required] {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedInput, required)
		}
	}

	table := SourceTable{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		rec, err := parseRow(header, row)
		if err != nil {
			return nil, err
		}
		table[rec.StationID] = rec
	}
	return table, nil
}

func parseRow(header, row []string) (StationRecord, error) {
	rec := StationRecord{}
	for i, name := range header {
		value := row[i]
		switch name {
		case colStation:
			id, err := strconv.Atoi(value)
			if err != nil {
				return rec, fmt.Errorf("%w: station id %q is not an integer", ErrMalformedInput, value)
			}
			rec.StationID = id
		case colAQI:
			aqi, err := strconv.Atoi(value)
			if err != nil {
				return rec, fmt.Errorf("%w: aqi %q is not an integer", ErrMalformedInput, value)
			}
			rec.AQI = aqi
		case colCurrentTime:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return rec, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedInput, value, err)
			}
			rec.ObservedAt = t.UTC()
		case colDate:
			t, err := time.Parse("01/02/2006", value)
			if err != nil {
				return rec, fmt.Errorf("%w: date %q: %v", ErrMalformedInput, value, err)
			}
			rec.ObservedAt = timezone.Midnight(t.Year(), t.Month(), t.Day()).UTC()
		case colName:
			rec.Name = value
		case colCategory:
			rec.Category = value
		case colPollutant:
			rec.Pollutant = value
		case colLink:
			rec.DetailLink = value
		case colShapeArea, colShapeLength:
			// not needed
		default:
			if rec.Extra == nil {
				rec.Extra = map[string]string{}
			}
			rec.Extra[name] = value
		}
	}
	return rec, nil
}
