package aqdetail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// The page typically refreshes a bit over an hour after the
	// reading it shows.
	DefaultBaseDelay = 4000 * time.Second
	// Each refetch that finds an unchanged report time pushes the next
	// one this much further out.
	DefaultBackoffIncrement = 500 * time.Second
	// Ceiling on accumulated backoff so a stalled page cannot push the
	// next refresh arbitrarily far into the future.
	DefaultMaxBackoff = 2 * time.Hour
	// Floor on the time between network attempts for one station.
	DefaultMinFetchInterval = 10 * time.Minute
)

var ErrThrottled = errors.New("fetch attempted too soon after a previous attempt")

type MonitorOptions struct {
	BaseDelay        time.Duration
	BackoffIncrement time.Duration
	MaxBackoff       time.Duration
	MinFetchInterval time.Duration
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Monitor caches the detail page observation for one station. The next
// permitted refetch is derived from the page's own report time, plus a
// growing backoff while the page keeps showing the same report time,
// so an upstream that publishes late is polled less, not more.
type Monitor struct {
	client      *Client
	station     int
	baseDelay   time.Duration
	increment   time.Duration
	maxBackoff  time.Duration
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	obs         *Observation
	delay       time.Duration
	nextUpdate  time.Time
	lastAttempt time.Time
}

func NewMonitor(client *Client, station int, opts MonitorOptions) *Monitor {
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.BackoffIncrement == 0 {
		opts.BackoffIncrement = DefaultBackoffIncrement
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MinFetchInterval == 0 {
		opts.MinFetchInterval = DefaultMinFetchInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		client:      client,
		station:     station,
		baseDelay:   opts.BaseDelay,
		increment:   opts.BackoffIncrement,
		maxBackoff:  opts.MaxBackoff,
		minInterval: opts.MinFetchInterval,
		now:         opts.Now,
		delay:       opts.BaseDelay,
	}
}

func (m *Monitor) Station() int {
	return m.station
}

// NextUpdate reports when a refetch becomes permitted. Zero until the
// first successful scrape.
func (m *Monitor) NextUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextUpdate
}

// Invalidate drops the cached observation and backoff state; the next
// Get scrapes again.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = nil
	m.delay = m.baseDelay
	m.nextUpdate = time.Time{}
	m.lastAttempt = time.Time{}
}

// Get returns the cached observation while it is fresh, otherwise
// scrapes the page again. A failed scrape keeps serving the previous
// observation when one exists.
func (m *Monitor) Get(ctx context.Context) (Observation, error) {
	ctx, span := tracer.Start(ctx, "monitor:Get")
	defer span.End()
	span.SetAttributes(attribute.Int("station", m.station))

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.obs != nil && !now.After(m.nextUpdate) {
		span.AddEvent("serving cached observation")
		return m.obs.clone(), nil
	}
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.minInterval {
		if m.obs != nil {
			span.AddEvent("throttled, serving cached observation")
			return m.obs.clone(), nil
		}
		err := fmt.Errorf("%w: station %d", ErrThrottled, m.station)
		span.RecordError(err)
		span.SetStatus(codes.Error, "throttled with no cached observation")
		return Observation{}, err
	}
	m.lastAttempt = now

	obs, err := m.client.FetchStation(ctx, m.station)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		if m.obs != nil {
			slog.WarnContext(ctx, "serving stale detail observation",
				"station", m.station, "err", err)
			return m.obs.clone(), nil
		}
		return Observation{}, err
	}

	if m.obs != nil && obs.ReportedAt.Equal(m.obs.ReportedAt) {
		// the page hasn't updated, push the next attempt further out
		if m.delay+m.increment <= m.baseDelay+m.maxBackoff {
			m.delay += m.increment
		}
	} else {
		m.delay = m.baseDelay
	}
	m.obs = &obs
	m.nextUpdate = obs.ReportedAt.Add(m.delay)

	return obs.clone(), nil
}
