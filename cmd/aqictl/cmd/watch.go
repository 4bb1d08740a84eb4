package cmd

import (
	"log/slog"
	"strconv"
	"time"

	"scaqmd-backend/lib/serviceutil"
	"scaqmd-backend/services/airquality"

	"github.com/spf13/cobra"
)

func init() {
	watchCmd.Flags().StringVar(&watchMode, "mode", "current", "current or forecast")
	rootCmd.AddCommand(watchCmd)
}

var watchMode string

var watchCmd = &cobra.Command{
	Use:   "watch <station-id>",
	Short: "Polls a reporting area on the feed's own schedule until interrupted.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		station, err := strconv.Atoi(args[0])
		if err != nil {
			serviceutil.Fatal("station id must be an integer", err)
		}

		sensor, err := airquality.NewSensor(
			cache,
			sensorConfig(station, watchMode),
			func(e airquality.Event) {
				slog.Info("station changed",
					"event", string(e.Type),
					"station", e.Station,
					"previous", e.Previous,
					"current", e.Current,
				)
			},
		)
		if err != nil {
			serviceutil.Fatal("invalid sensor configuration", err)
		}

		ctx := cmd.Context()
		for {
			rec, err := sensor.Record(ctx)
			if err != nil {
				slog.Error("failed to read station record", "err", err)
			} else {
				slog.Info("station record",
					"station", rec.StationID,
					"name", rec.Name,
					"aqi", rec.AQI,
					"category", rec.Category,
					"observed", rec.ObservedAt,
				)
			}

			// sleep until just past the data-derived refresh time; on
			// errors fall back to a flat retry interval
			wait := 10 * time.Minute
			if next, err := sensor.NextUpdate(ctx); err == nil {
				if until := time.Until(next.Add(time.Minute)); until > wait {
					wait = until
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	},
}
