package aqdetail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type detailServer struct {
	*httptest.Server
	requests atomic.Int64
	payload  atomic.Value
}

func newDetailServer(t testing.TB, payload string) *detailServer {
	ds := &detailServer{}
	ds.payload.Store(payload)
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.requests.Add(1)
		w.Write([]byte(ds.payload.Load().(string)))
	}))
	t.Cleanup(ds.Close)
	return ds
}

// fixture reports 8:00pm PDT on 2019-07-16, which is 03:00 UTC the next day
var reportedAt = time.Date(2019, time.July, 17, 3, 0, 0, 0, time.UTC)

func newTestMonitor(t testing.TB, server *detailServer, now *time.Time) *Monitor {
	client := NewClient(ClientOptions{
		BaseURL: server.URL,
		HTTP:    resty.New(),
	})
	return NewMonitor(client, 10, MonitorOptions{
		Now: func() time.Time { return *now },
	})
}

func TestMonitorFetchAndCache(t *testing.T) {
	server := newDetailServer(t, readFixture(t))
	now := reportedAt.Add(30 * time.Minute)
	monitor := newTestMonitor(t, server, &now)
	ctx := context.Background()

	obs, err := monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Pomona-Walnut Valley", obs.Name)
	require.Equal(t, 10, obs.Station)
	require.True(t, monitor.NextUpdate().Equal(reportedAt.Add(DefaultBaseDelay)))

	// fresh: no second request
	_, err = monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), server.requests.Load())
}

func TestMonitorBackoff(t *testing.T) {
	server := newDetailServer(t, readFixture(t))
	now := reportedAt.Add(30 * time.Minute)
	monitor := newTestMonitor(t, server, &now)
	ctx := context.Background()

	_, err := monitor.Get(ctx)
	require.NoError(t, err)
	first := monitor.NextUpdate()

	// past nextUpdate, page still shows the same report time
	now = first.Add(5 * time.Minute)
	_, err = monitor.Get(ctx)
	require.NoError(t, err)
	second := monitor.NextUpdate()

	require.True(t, second.After(first))
	require.GreaterOrEqual(t,
		second.Sub(first), DefaultBackoffIncrement,
	)

	// the page finally updates: backoff resets to the base delay
	server.payload.Store(strings.Replace(readFixture(t), "8:00pm", "9:00pm", 1))
	newReport := reportedAt.Add(time.Hour)
	now = second.Add(15 * time.Minute)

	obs, err := monitor.Get(ctx)
	require.NoError(t, err)
	require.True(t, obs.ReportedAt.Equal(newReport))
	require.True(t, monitor.NextUpdate().Equal(newReport.Add(DefaultBaseDelay)))
}

func TestMonitorThrottle(t *testing.T) {
	server := newDetailServer(t, readFixture(t))
	now := reportedAt.Add(30 * time.Minute)
	monitor := newTestMonitor(t, server, &now)
	ctx := context.Background()

	_, err := monitor.Get(ctx)
	require.NoError(t, err)

	// stale, and the last attempt is far enough back: refetch
	now = monitor.NextUpdate().Add(time.Minute)
	_, err = monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), server.requests.Load())

	// the backoff window has passed again, but the previous attempt was
	// only nine minutes ago: the throttle serves the cached observation
	now = now.Add(9 * time.Minute)
	require.True(t, now.After(monitor.NextUpdate()))
	obs, err := monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Pomona-Walnut Valley", obs.Name)
	require.Equal(t, int64(2), server.requests.Load())
}

func TestMonitorInvalidate(t *testing.T) {
	server := newDetailServer(t, readFixture(t))
	now := reportedAt.Add(30 * time.Minute)
	monitor := newTestMonitor(t, server, &now)
	ctx := context.Background()

	_, err := monitor.Get(ctx)
	require.NoError(t, err)

	monitor.Invalidate()

	_, err = monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), server.requests.Load())
}

func TestMonitorServesStaleOnFailure(t *testing.T) {
	server := newDetailServer(t, readFixture(t))
	now := reportedAt.Add(30 * time.Minute)
	monitor := newTestMonitor(t, server, &now)
	ctx := context.Background()

	first, err := monitor.Get(ctx)
	require.NoError(t, err)

	// upstream redesign: structure disappears
	server.payload.Store("<html><body>redesigned</body></html>")
	now = monitor.NextUpdate().Add(15 * time.Minute)

	obs, err := monitor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Name, obs.Name)
	require.True(t, obs.ReportedAt.Equal(first.ReportedAt))
}
