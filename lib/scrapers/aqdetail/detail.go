// Package aqdetail scrapes the AQMD per-station detail page
// (https://xappprod.aqmd.gov/aqdetail/) which carries pollutant
// sub-indices the open data feed does not.
package aqdetail

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scaqmd-backend/lib/htmlutil"
	"scaqmd-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type Pollutant int

const (
	Ozone Pollutant = iota
	PM25
	PM10
	NO2
	CO
)

func (p Pollutant) String() string {
	switch p {
	case Ozone:
		return "ozone"
	case PM25:
		return "pm2.5"
	case PM10:
		return "pm10"
	case NO2:
		return "nitrogen dioxide"
	case CO:
		return "carbon monoxide"
	}
	return "unknown"
}

// pollutantCodes maps the codes printed on the page to pollutant kinds.
var pollutantCodes = map[string]Pollutant{
	"O3":    Ozone,
	"PM2.5": PM25,
	"PM10":  PM10,
	"NO2":   NO2,
	"CO":    CO,
}

// Reading is a pollutant sub-index that may be absent; an aggregate of
// zero and "no reading at all" are different things.
type Reading struct {
	Value int
	Valid bool
}

// Observation is one scrape of the detail page for one station.
type Observation struct {
	Station    int
	Name       string
	ReportedAt time.Time

	Ozone Reading
	PM25  Reading
	PM10  Reading
	NO2   Reading
	CO    Reading

	// Warnings records rows the parser skipped instead of failing the
	// whole parse; partial data is acceptable here.
	Warnings []string
}

func (o Observation) clone() Observation {
	out := o
	if o.Warnings != nil {
		out.Warnings = append([]string(nil), o.Warnings...)
	}
	return out
}

func (o Observation) Reading(p Pollutant) Reading {
	switch p {
	case Ozone:
		return o.Ozone
	case PM25:
		return o.PM25
	case PM10:
		return o.PM10
	case NO2:
		return o.NO2
	case CO:
		return o.CO
	}
	return Reading{}
}

func (o *Observation) setReading(p Pollutant, value int) {
	switch p {
	case Ozone:
		o.Ozone = Reading{Value: value, Valid: true}
	case PM25:
		o.PM25 = Reading{Value: value, Valid: true}
	case PM10:
		o.PM10 = Reading{Value: value, Valid: true}
	case NO2:
		o.NO2 = Reading{Value: value, Valid: true}
	case CO:
		o.CO = Reading{Value: value, Valid: true}
	}
}

// AQI is the maximum of the sub-indices present. ok is false when no
// sub-index parsed at all.
func (o Observation) AQI() (int, bool) {
	max := 0
	ok := false
	for _, r := range []Reading{o.Ozone, o.PM25, o.PM10, o.NO2, o.CO} {
		if !r.Valid {
			continue
		}
		if !ok || r.Value > max {
			max = r.Value
		}
		ok = true
	}
	return max, ok
}

var ErrStructureNotFound = errors.New("detail page structure not found")

// ParseDetail extracts one station observation from a detail page; it
// fails only when the page no longer has the shape we expect, which
// usually means an upstream redesign.
func ParseDetail(doc *goquery.Document) (Observation, error) {
	obs := Observation{}
	if err := parseStationMeta(doc, &obs); err != nil {
		return Observation{}, err
	}
	if err := parseSubIndices(doc, &obs); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

func parseStationMeta(doc *goquery.Document, obs *Observation) error {
	container := doc.Find("div.p20").First()
	if container.Length() == 0 {
		return fmt.Errorf("%w: station metadata container", ErrStructureNotFound)
	}

	container.Find("label").Each(func(_ int, label *goquery.Selection) {
		text := htmlutil.CleanText(label.Text())
		switch {
		case text == "Station Name:":
			sibling := label.Nodes[0].NextSibling
			if sibling != nil && sibling.Type == html.TextNode {
				obs.Name = htmlutil.CleanText(htmlutil.GetText(sibling))
			}
		case strings.Contains(text, "Reading Date Time"):
			parts := strings.SplitN(text, ": ", 2)
			if len(parts) != 2 {
				return
			}
			// keep everything up to and including the meridiem's "m",
			// the page appends a timezone suffix after it
			value := parts[1]
			idx := strings.Index(value, "m")
			if idx < 0 {
				return
			}
			ts, err := time.ParseInLocation(
				"01/02/2006 3:04pm",
				htmlutil.CleanText(value[:idx+1]),
				timezone.Location,
			)
			if err != nil {
				return
			}
			obs.ReportedAt = ts
		}
	})

	if obs.ReportedAt.IsZero() {
		return fmt.Errorf("%w: reading date time label", ErrStructureNotFound)
	}
	return nil
}

func parseSubIndices(doc *goquery.Document, obs *Observation) error {
	tables := doc.Find("table")
	if tables.Length() < 2 {
		return fmt.Errorf("%w: pollutant table", ErrStructureNotFound)
	}

	tables.Eq(1).Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header row
			return
		}
		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			text := htmlutil.CleanText(cell.Text())
			if text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) < 2 {
			return
		}
		kind, known := pollutantCodes[cells[0]]
		if !known {
			return
		}
		value, err := strconv.Atoi(cells[1])
		if err != nil {
			obs.Warnings = append(obs.Warnings, fmt.Sprintf(
				"invalid %s sub-index %q", cells[0], cells[1],
			))
			return
		}
		obs.setReading(kind, value)
	})

	return nil
}
