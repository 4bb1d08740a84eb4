package cmd

import (
	"os"
	"strconv"
	"time"

	"scaqmd-backend/lib/serviceutil"
	"scaqmd-backend/services/airquality"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(forecastCmd)
}

var currentCmd = &cobra.Command{
	Use:   "current <station-id>",
	Short: "Prints the current air quality for a reporting area.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFeed(cmd, args[0], "current")
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast <station-id>",
	Short: "Prints tomorrow's forecast air quality for a reporting area.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFeed(cmd, args[0], "forecast")
	},
}

func runFeed(cmd *cobra.Command, stationArg, mode string) {
	station, err := strconv.Atoi(stationArg)
	if err != nil {
		serviceutil.Fatal("station id must be an integer", err)
	}

	sensor, err := airquality.NewSensor(cache, sensorConfig(station, mode), nil)
	if err != nil {
		serviceutil.Fatal("invalid sensor configuration", err)
	}

	rec, err := sensor.Record(cmd.Context())
	if err != nil {
		serviceutil.Fatal("failed to read station record", err)
	}
	next, err := sensor.NextUpdate(cmd.Context())
	if err != nil {
		serviceutil.Fatal("failed to read next update", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Station", "Name", "AQI", "Category", "Pollutant", "Observed", "Next update"})
	t.AppendRow(table.Row{
		rec.StationID,
		rec.Name,
		rec.AQI,
		rec.Category,
		rec.Pollutant,
		rec.ObservedAt.Format(time.RFC3339),
		next.Format(time.RFC3339),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
