// Package aqfeed reads the SCAQMD open data CSV feeds
// (https://data-scaqmd-online.opendata.arcgis.com/) and caches them
// according to the rhythm the district actually publishes on: the
// current conditions feed refreshes on the hour, the forecast feed
// around noon local time.
package aqfeed

import (
	"errors"
	"fmt"
	"time"
)

type Mode int

const (
	ModeCurrent Mode = iota
	ModeForecast
)

func (m Mode) String() string {
	switch m {
	case ModeForecast:
		return "forecast"
	default:
		return "current"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "current":
		return ModeCurrent, nil
	case "forecast":
		return ModeForecast, nil
	}
	return ModeCurrent, fmt.Errorf("unknown mode %q, expected current or forecast", s)
}

// StationRecord is one row of the feed for one reporting area. It is
// always handed out by value; callers never get a handle into cache
// state.
type StationRecord struct {
	StationID int
	Name      string
	AQI       int
	// ObservedAt is always UTC. In current mode it is the instant the
	// reading was taken; in forecast mode it is the forecast date
	// anchored to midnight district local time.
	ObservedAt time.Time
	Category   string
	Pollutant  string
	// DetailLink is only populated by the current feed.
	DetailLink string
	// Extra carries feed columns we don't interpret.
	Extra map[string]string
}

func (r StationRecord) clone() StationRecord {
	out := r
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SourceTable holds one fetch of one feed, keyed by station id. The
// feed occasionally repeats a station; the later row wins, matching the
// upstream's own documented behavior.
type SourceTable map[int]StationRecord

func (t SourceTable) clone() SourceTable {
	out := make(SourceTable, len(t))
	for id, rec := range t {
		out[id] = rec.clone()
	}
	return out
}

var (
	ErrMalformedInput  = errors.New("malformed feed input")
	ErrStationNotFound = errors.New("station not found")
)
