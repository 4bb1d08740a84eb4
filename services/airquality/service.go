// Package airquality exposes a cached SCAQMD feed as per-station
// sensors the way a home automation host expects them: a display name,
// a numeric state, a bag of attributes and change events.
package airquality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scaqmd-backend/lib/scrapers/aqdetail"
	"scaqmd-backend/lib/scrapers/aqfeed"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCurrentURL  = "https://opendata.arcgis.com/datasets/d50c7062e9024c68b22bd4f15710a7f6_0.csv"
	DefaultForecastURL = "https://opendata.arcgis.com/datasets/67b86d6bc8414fb6b977df2ed6e1e171_0.csv"

	Unit        = "AQI"
	Attribution = "SCAQMD Open Data"
	Icon        = "mdi:cloud-outline"
)

type Config struct {
	Station     int    `json:"station"`
	Mode        string `json:"mode"`
	CurrentURL  string `json:"current_url"`
	ForecastURL string `json:"forecast_url"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = "current"
	}
	if c.CurrentURL == "" {
		c.CurrentURL = DefaultCurrentURL
	}
	if c.ForecastURL == "" {
		c.ForecastURL = DefaultForecastURL
	}
	return c
}

func (c Config) Validate() error {
	if c.Station <= 0 {
		return fmt.Errorf("station must be a positive integer, got %d", c.Station)
	}
	if _, err := aqfeed.ParseMode(c.withDefaults().Mode); err != nil {
		return err
	}
	return nil
}

type EventType string

const (
	EventAQIChanged      EventType = "aqi_changed"
	EventCategoryChanged EventType = "category_changed"
)

// Event is fired when two consecutive reads of the same station differ.
type Event struct {
	Type     EventType
	Station  int
	Previous any
	Current  any
}

type EventSink func(Event)

// Sensor reads one station out of a shared feed cache. The cache is
// injected so several sensors share fetches of the same feed url.
type Sensor struct {
	cache   *aqfeed.Cache
	url     string
	mode    aqfeed.Mode
	station int
	sink    EventSink

	mu   sync.Mutex
	prev *aqfeed.StationRecord
}

// NewSensor validates config and builds a sensor on top of cache.
// sink may be nil when the caller doesn't care about change events.
func NewSensor(cache *aqfeed.Cache, config Config, sink EventSink) (*Sensor, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	mode, err := aqfeed.ParseMode(config.Mode)
	if err != nil {
		return nil, err
	}
	url := config.CurrentURL
	if mode == aqfeed.ModeForecast {
		url = config.ForecastURL
	}
	return &Sensor{
		cache:   cache,
		url:     url,
		mode:    mode,
		station: config.Station,
		sink:    sink,
	}, nil
}

// Record returns the station's current record, fetching through the
// cache only when the feed's own timestamps say new data is due.
func (s *Sensor) Record(ctx context.Context) (aqfeed.StationRecord, error) {
	entry, err := s.cache.Get(ctx, s.url, s.mode)
	if err != nil {
		return aqfeed.StationRecord{}, err
	}
	rec, err := entry.Station(s.station)
	if err != nil {
		return aqfeed.StationRecord{}, err
	}
	s.observe(rec)
	return rec, nil
}

// observe compares a fresh read against the previous one and fires
// change events. The first read has nothing to compare against.
func (s *Sensor) observe(rec aqfeed.StationRecord) {
	s.mu.Lock()
	prev := s.prev
	s.prev = &rec
	s.mu.Unlock()

	if prev == nil || s.sink == nil {
		return
	}
	if prev.AQI != rec.AQI {
		s.sink(Event{
			Type:     EventAQIChanged,
			Station:  s.station,
			Previous: prev.AQI,
			Current:  rec.AQI,
		})
	}
	if prev.Category != rec.Category {
		s.sink(Event{
			Type:     EventCategoryChanged,
			Station:  s.station,
			Previous: prev.Category,
			Current:  rec.Category,
		})
	}
}

func (s *Sensor) Name(ctx context.Context) (string, error) {
	rec, err := s.Record(ctx)
	if err != nil {
		return "", err
	}
	suffix := "Current Air Quality"
	if s.mode == aqfeed.ModeForecast {
		suffix = "Tomorrows Forecast Air Quality"
	}
	return rec.Name + " " + suffix, nil
}

// State is the station's aqi, the sensor's numeric state.
func (s *Sensor) State(ctx context.Context) (int, error) {
	rec, err := s.Record(ctx)
	if err != nil {
		return 0, err
	}
	return rec.AQI, nil
}

// NextUpdate reports when the underlying feed is expected to change.
func (s *Sensor) NextUpdate(ctx context.Context) (time.Time, error) {
	entry, err := s.cache.Get(ctx, s.url, s.mode)
	if err != nil {
		return time.Time{}, err
	}
	return entry.NextUpdate, nil
}

// Attributes returns the record the way the host displays it.
func (s *Sensor) Attributes(ctx context.Context) (map[string]any, error) {
	entry, err := s.cache.Get(ctx, s.url, s.mode)
	if err != nil {
		return nil, err
	}
	rec, err := entry.Station(s.station)
	if err != nil {
		return nil, err
	}

	attributes := map[string]any{
		"attribution": Attribution,
		"name":        rec.Name,
		"date":        entry.ValidAsOf,
		"aqi":         rec.AQI,
		"category":    rec.Category,
		"pollutant":   rec.Pollutant,
		"unit":        Unit,
		"icon":        Icon,
	}
	if s.mode == aqfeed.ModeCurrent {
		attributes["link"] = rec.DetailLink
	}
	return attributes, nil
}

// DetailRegistry hands out one backoff-aware monitor per station so
// repeated lookups share scrape state. Entries idle for a day fall out
// of the registry.
type DetailRegistry struct {
	client *aqdetail.Client

	mu       sync.Mutex
	monitors *expirable.LRU[int, *aqdetail.Monitor]
}

func NewDetailRegistry(client *aqdetail.Client) *DetailRegistry {
	return &DetailRegistry{
		client:   client,
		monitors: expirable.NewLRU[int, *aqdetail.Monitor](256, nil, time.Hour*24),
	}
}

func (r *DetailRegistry) Monitor(station int) *aqdetail.Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, hit := r.monitors.Get(station)
	if hit {
		return cached
	}
	monitor := aqdetail.NewMonitor(r.client, station, aqdetail.MonitorOptions{})
	r.monitors.Add(station, monitor)
	return monitor
}
