package airquality

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"scaqmd-backend/lib/scrapers/aqdetail"
	"scaqmd-backend/lib/scrapers/aqfeed"
	"scaqmd-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) func() {
	return telemetry.SetupForTesting(t, "services/airquality")
}

func readFixture(t testing.TB, name string) []byte {
	data, err := os.ReadFile("../../lib/scrapers/aqfeed/testdata/" + name)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// a clock pinned between the fixture's 21:00 reading and its 22:00
// refresh, so cache entries stay fresh for the whole test
func pinnedCache() *aqfeed.Cache {
	now := time.Date(2018, time.June, 24, 21, 30, 0, 0, time.UTC)
	return aqfeed.New(aqfeed.Options{
		HTTP: resty.New(),
		Now:  func() time.Time { return now },
	})
}

func TestConfigValidate(t *testing.T) {
	require.Error(t, Config{Station: 0}.Validate())
	require.Error(t, Config{Station: -4}.Validate())
	require.Error(t, Config{Station: 3, Mode: "hourly"}.Validate())

	require.NoError(t, Config{Station: 3}.Validate())
	require.NoError(t, Config{Station: 3, Mode: "forecast"}.Validate())
}

func TestSensorCurrent(t *testing.T) {
	defer setup(t)()

	cache := pinnedCache()
	err := cache.Put(DefaultCurrentURL, aqfeed.ModeCurrent, readFixture(t, "current_air_quality.csv"))
	require.NoError(t, err)

	sensor, err := NewSensor(cache, Config{Station: 3}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	name, err := sensor.Name(ctx)
	require.NoError(t, err)
	require.Equal(t, "Southwest Coastal LA County Current Air Quality", name)

	state, err := sensor.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 33, state)

	next, err := sensor.NextUpdate(ctx)
	require.NoError(t, err)
	require.True(t, next.Equal(time.Date(2018, time.June, 24, 22, 0, 0, 0, time.UTC)))

	attributes, err := sensor.Attributes(ctx)
	require.NoError(t, err)
	require.Equal(t, Attribution, attributes["attribution"])
	require.Equal(t, "AQI", attributes["unit"])
	require.Contains(t, attributes, "link")
}

func TestSensorForecast(t *testing.T) {
	defer setup(t)()

	cache := pinnedCache()
	err := cache.Put(DefaultForecastURL, aqfeed.ModeForecast, readFixture(t, "tomorrows_forecast.csv"))
	require.NoError(t, err)

	sensor, err := NewSensor(cache, Config{Station: 3, Mode: "forecast"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	name, err := sensor.Name(ctx)
	require.NoError(t, err)
	require.Equal(t, "Southwest Coastal LA County Tomorrows Forecast Air Quality", name)

	state, err := sensor.State(ctx)
	require.NoError(t, err)
	require.Equal(t, 48, state)

	next, err := sensor.NextUpdate(ctx)
	require.NoError(t, err)
	require.True(t, next.Equal(time.Date(2018, time.June, 25, 19, 0, 0, 0, time.UTC)))

	attributes, err := sensor.Attributes(ctx)
	require.NoError(t, err)
	require.NotContains(t, attributes, "link")
}

func TestSensorChangeEvents(t *testing.T) {
	cache := pinnedCache()
	payload := string(readFixture(t, "current_air_quality.csv"))
	err := cache.Put(DefaultCurrentURL, aqfeed.ModeCurrent, []byte(payload))
	require.NoError(t, err)

	var events []Event
	sensor, err := NewSensor(cache, Config{Station: 3}, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	ctx := context.Background()

	// first read: nothing to compare against
	_, err = sensor.Record(ctx)
	require.NoError(t, err)
	require.Empty(t, events)

	// same data again: no events either
	_, err = sensor.Record(ctx)
	require.NoError(t, err)
	require.Empty(t, events)

	changed := strings.Replace(payload,
		"Southwest Coastal LA County,33,2018-06-24T21:00:00.000Z,Good",
		"Southwest Coastal LA County,75,2018-06-24T21:00:00.000Z,Moderate",
		1,
	)
	err = cache.Put(DefaultCurrentURL, aqfeed.ModeCurrent, []byte(changed))
	require.NoError(t, err)

	_, err = sensor.Record(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, EventAQIChanged, events[0].Type)
	require.Equal(t, 33, events[0].Previous)
	require.Equal(t, 75, events[0].Current)

	require.Equal(t, EventCategoryChanged, events[1].Type)
	require.Equal(t, "Good", events[1].Previous)
	require.Equal(t, "Moderate", events[1].Current)
}

func TestDetailRegistrySharesMonitors(t *testing.T) {
	registry := NewDetailRegistry(aqdetail.NewClient(aqdetail.ClientOptions{
		HTTP: resty.New(),
	}))

	first := registry.Monitor(10)
	second := registry.Monitor(10)
	require.Same(t, first, second)

	other := registry.Monitor(4)
	require.NotSame(t, first, other)
	require.Equal(t, 4, other.Station())
}
