package aqdetail

import (
	"os"
	"strings"
	"testing"
	"time"

	"scaqmd-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func readFixture(t testing.TB) string {
	data, err := os.ReadFile("testdata/aq_details.html")
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func parseFixture(t testing.TB, page string) Observation {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	obs, err := ParseDetail(doc)
	require.NoError(t, err)
	return obs
}

func TestParseDetail(t *testing.T) {
	obs := parseFixture(t, readFixture(t))

	require.Equal(t, "Pomona-Walnut Valley", obs.Name)

	expected := time.Date(2019, time.July, 16, 20, 0, 0, 0, timezone.Location)
	require.True(t, obs.ReportedAt.Equal(expected), "reported at %s", obs.ReportedAt)

	require.Equal(t, Reading{Value: 28, Valid: true}, obs.PM25)
	require.Equal(t, Reading{Value: 38, Valid: true}, obs.PM10)
	require.Equal(t, Reading{Value: 5, Valid: true}, obs.NO2)
	require.Equal(t, Reading{Value: 2, Valid: true}, obs.CO)

	// the O3 row carries a dash; it is skipped with a warning, not fatal
	require.False(t, obs.Ozone.Valid)
	require.Len(t, obs.Warnings, 1)
	require.Contains(t, obs.Warnings[0], "O3")

	aqi, ok := obs.AQI()
	require.True(t, ok)
	require.Equal(t, 38, aqi)
}

func TestParseDetailStructureMissing(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)

	_, err = ParseDetail(doc)
	require.ErrorIs(t, err, ErrStructureNotFound)
}

func TestParseDetailTableMissing(t *testing.T) {
	// metadata present, pollutant table absent
	page := `<html><body><div class="p20">
		<label>Station Name:</label> Somewhere
		<label>Reading Date Time: 07/16/2019 8:00pm (PST)</label>
	</div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	_, err = ParseDetail(doc)
	require.ErrorIs(t, err, ErrStructureNotFound)
}

func TestAggregateIsMaxOfPresent(t *testing.T) {
	obs := Observation{}
	obs.setReading(Ozone, 10)
	obs.setReading(PM10, 38)

	aqi, ok := obs.AQI()
	require.True(t, ok)
	require.Equal(t, 38, aqi)
}

func TestAggregateUndefinedWhenEmpty(t *testing.T) {
	obs := Observation{}

	_, ok := obs.AQI()
	require.False(t, ok)
}
