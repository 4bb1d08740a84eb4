package aqfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scaqmd-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/aqfeed")

// DefaultMinFetchInterval bounds how often the network is touched for a
// single feed url, independent of what the data's timestamps say.
const DefaultMinFetchInterval = 10 * time.Minute

var ErrThrottled = errors.New("fetch attempted too soon after a previous attempt")

// Entry wraps one parsed fetch of one feed url.
//
// NextUpdate is a pure function of ValidAsOf and Mode; it is never
// derived from FetchedAt.
type Entry struct {
	Mode  Mode
	Table SourceTable
	// FetchedAt is the wall-clock instant the bytes were retrieved.
	FetchedAt time.Time
	// ValidAsOf is the instant embedded in the data itself.
	ValidAsOf time.Time
	// NextUpdate is the instant after which a refetch is permitted.
	NextUpdate time.Time
}

func (e Entry) clone() Entry {
	out := e
	out.Table = e.Table.clone()
	return out
}

// Station returns the record for one reporting area.
func (e Entry) Station(id int) (StationRecord, error) {
	rec, ok := e.Table[id]
	if !ok {
		return StationRecord{}, fmt.Errorf("%w: %d", ErrStationNotFound, id)
	}
	return rec.clone(), nil
}

type Options struct {
	// HTTP is the client used to fetch feeds. When nil a default
	// client with a 30s timeout and a politeness rate limit is built.
	HTTP *resty.Client
	// MinFetchInterval defaults to DefaultMinFetchInterval.
	MinFetchInterval time.Duration
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Cache holds the most recent parsed table per feed url and mode, and
// refetches only once the data-derived NextUpdate has passed. Construct
// one explicitly and hand it to everything that needs it; there is no
// package-level instance.
type Cache struct {
	http        *resty.Client
	minInterval time.Duration
	now         func() time.Time

	mu    sync.Mutex
	slots map[string]*slot
}

// slot.mu also serializes refreshes per slot, so concurrent callers
// hitting a stale entry issue a single network request between them.
type slot struct {
	mu          sync.Mutex
	entry       *Entry
	lastAttempt time.Time
}

func New(opts Options) *Cache {
	client := opts.HTTP
	if client == nil {
		client = resty.New()
		client.SetTimeout(time.Second * 30)

		// 2 requests max per second
		limiter := rate.NewLimiter(2, 2)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
		telemetry.InstrumentResty(client, "scrapers/aqfeed/http")
	}
	minInterval := opts.MinFetchInterval
	if minInterval == 0 {
		minInterval = DefaultMinFetchInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		http:        client,
		minInterval: minInterval,
		now:         now,
		slots:       map[string]*slot{},
	}
}

// Get returns the cached entry for url and mode while it is still
// fresh, and otherwise fetches, parses and stores a new one. On a
// failed refresh the previous entry, if any, keeps being served; only a
// miss with no prior entry surfaces the error.
func (c *Cache) Get(ctx context.Context, url string, mode Mode) (Entry, error) {
	ctx, span := tracer.Start(ctx, "cache:Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("url", url),
		attribute.String("mode", mode.String()),
	)

	s := c.slot(url, mode)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	if s.entry != nil && !now.After(s.entry.NextUpdate) {
		span.AddEvent("serving cached entry")
		return s.entry.clone(), nil
	}
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < c.minInterval {
		// the data says we are stale, but don't hammer the network
		if s.entry != nil {
			span.AddEvent("throttled, serving cached entry")
			return s.entry.clone(), nil
		}
		err := fmt.Errorf("%w: %s", ErrThrottled, url)
		span.RecordError(err)
		span.SetStatus(codes.Error, "throttled with no cached entry")
		return Entry{}, err
	}
	s.lastAttempt = now

	entry, err := c.refresh(ctx, url, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		if s.entry != nil {
			slog.WarnContext(ctx, "serving stale air quality feed", "url", url, "err", err)
			return s.entry.clone(), nil
		}
		return Entry{}, err
	}

	s.entry = &entry
	return entry.clone(), nil
}

// Put injects a raw payload directly, bypassing the network. Used by
// tests and by schedulers that fetch out-of-band.
func (c *Cache) Put(url string, mode Mode, raw []byte) error {
	entry, err := c.build(raw, mode)
	if err != nil {
		return err
	}
	s := c.slot(url, mode)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = &entry
	return nil
}

// Invalidate drops the entries for url in both modes, forcing the next
// Get to refetch.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, slotKey(url, ModeCurrent))
	delete(c.slots, slotKey(url, ModeForecast))
}

// slotKey separates the two modes so an entry stored under one mode is
// never handed back to a caller asking for the other.
func slotKey(url string, mode Mode) string {
	return mode.String() + " " + url
}

func (c *Cache) slot(url string, mode Mode) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := slotKey(url, mode)
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

// refresh performs exactly one network call. There is no retry here: a
// transport failure propagates to Get, which decides whether stale data
// can cover for it.
func (c *Cache) refresh(ctx context.Context, url string, mode Mode) (Entry, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return Entry{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if res.IsError() {
		return Entry{}, fmt.Errorf("fetch %s: unexpected status %s", url, res.Status())
	}
	return c.build(res.Body(), mode)
}

func (c *Cache) build(raw []byte, mode Mode) (Entry, error) {
	table, err := ParseTable(raw, mode)
	if err != nil {
		return Entry{}, err
	}
	if len(table) == 0 {
		return Entry{}, fmt.Errorf("%w: feed contains no rows", ErrMalformedInput)
	}
	valid := ValidAsOf(table)
	return Entry{
		Mode:       mode,
		Table:      table,
		FetchedAt:  c.now(),
		ValidAsOf:  valid,
		NextUpdate: NextRefresh(valid, mode),
	}, nil
}
