package aqdetail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"scaqmd-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/aqdetail")

const DefaultBaseURL = "https://xappprod.aqmd.gov"

type ClientOptions struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTP overrides the default resty client, mostly for tests.
	HTTP *resty.Client
}

type Client struct {
	http *resty.Client
}

func NewClient(opts ClientOptions) *Client {
	client := opts.HTTP
	if client == nil {
		client = resty.New()
		client.SetTimeout(time.Second * 30)

		// 2 requests max per second
		limiter := rate.NewLimiter(2, 2)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
		telemetry.InstrumentResty(client, "scrapers/aqdetail/http")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client.SetBaseURL(base)

	return &Client{http: client}
}

// FetchStation scrapes the detail page for one station. Row-level
// pollutant parse failures end up in Observation.Warnings rather than
// failing the scrape.
func (c *Client) FetchStation(ctx context.Context, station int) (Observation, error) {
	ctx, span := tracer.Start(ctx, "client:FetchStation")
	defer span.End()
	span.SetAttributes(attribute.Int("station", station))

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("AreaNumber", strconv.Itoa(station)).
		Get("/aqdetail/AirQuality")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch detail page")
		return Observation{}, fmt.Errorf("fetch station %d: %w", station, err)
	}
	if res.IsError() {
		err := fmt.Errorf("fetch station %d: unexpected status %s", station, res.Status())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return Observation{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse html")
		return Observation{}, err
	}

	obs, err := ParseDetail(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse detail page")
		return Observation{}, err
	}
	obs.Station = station

	for _, warning := range obs.Warnings {
		slog.WarnContext(ctx, "skipped pollutant row", "station", station, "reason", warning)
	}

	return obs, nil
}
