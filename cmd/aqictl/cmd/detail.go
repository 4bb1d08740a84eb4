package cmd

import (
	"os"
	"strconv"
	"time"

	"scaqmd-backend/lib/scrapers/aqdetail"
	"scaqmd-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detailCmd)
}

var detailCmd = &cobra.Command{
	Use:   "detail <station-id>",
	Short: "Scrapes the AQMD detail page and prints pollutant sub-indices.",
	Run: func(cmd *cobra.Command, args []string) {
		station, err := strconv.Atoi(args[0])
		if err != nil {
			serviceutil.Fatal("station id must be an integer", err)
		}

		obs, err := registry.Monitor(station).Get(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to scrape detail page", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Pollutant", "Sub-index"})
		for _, kind := range []aqdetail.Pollutant{
			aqdetail.Ozone,
			aqdetail.PM25,
			aqdetail.PM10,
			aqdetail.NO2,
			aqdetail.CO,
		} {
			reading := obs.Reading(kind)
			if !reading.Valid {
				t.AppendRow(table.Row{kind.String(), "-"})
				continue
			}
			t.AppendRow(table.Row{kind.String(), reading.Value})
		}
		if aqi, ok := obs.AQI(); ok {
			t.AppendFooter(table.Row{"AQI", aqi})
		} else {
			t.AppendFooter(table.Row{"AQI", "unknown"})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		cmd.Printf("%s, reported %s\n",
			obs.Name,
			obs.ReportedAt.Format(time.RFC1123),
		)
	},
	Args: cobra.ExactArgs(1),
}
