package cmd

import (
	"context"
	"os"

	"scaqmd-backend/lib/configutil"
	"scaqmd-backend/lib/scrapers/aqdetail"
	"scaqmd-backend/lib/scrapers/aqfeed"
	"scaqmd-backend/lib/serviceutil"
	"scaqmd-backend/lib/telemetry"
	"scaqmd-backend/services/airquality"

	"github.com/spf13/cobra"
)

type Config struct {
	CurrentURL    string `json:"current_url"`
	ForecastURL   string `json:"forecast_url"`
	DetailBaseURL string `json:"detail_base_url"`
}

var (
	config   Config
	cache    *aqfeed.Cache
	registry *airquality.DetailRegistry
)

var rootCmd = &cobra.Command{
	Use:   "aqictl",
	Short: "Inspect SCAQMD air quality data from the command line.",
}

func Execute() {
	ctx := serviceutil.SignalContext()

	cfg, err := configutil.ReadConfig[Config]("aqictl.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	config = cfg

	tel, err := telemetry.SetupFromEnv(ctx, "aqictl")
	if err == nil {
		defer tel.Shutdown(context.Background())
	}

	cache = aqfeed.New(aqfeed.Options{})
	registry = airquality.NewDetailRegistry(aqdetail.NewClient(aqdetail.ClientOptions{
		BaseURL: config.DetailBaseURL,
	}))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func sensorConfig(station int, mode string) airquality.Config {
	return airquality.Config{
		Station:     station,
		Mode:        mode,
		CurrentURL:  config.CurrentURL,
		ForecastURL: config.ForecastURL,
	}
}
