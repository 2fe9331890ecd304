package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/config"
)

// Globals are flags shared by every command. Flags that are set override
// the config file.
type Globals struct {
	Config    string `help:"Path to YAML config file." type:"path" env:"PMFORECAST_CONFIG"`
	DB        string `help:"Path to SQLite database (overrides config)." env:"PMFORECAST_DB"`
	RedisAddr string `help:"Redis address for the prediction cache (overrides config)." env:"PMFORECAST_REDIS_ADDR"`
	LogLevel  string `help:"Log level (overrides config)." env:"PMFORECAST_LOG_LEVEL"`
	LogFormat string `help:"Log format (overrides config)." env:"PMFORECAST_LOG_FORMAT"`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Run the HTTP API with background ingest."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest air quality, weather and cameras once and exit."`
	Predict  PredictCmd  `cmd:"" help:"Print tomorrow's prediction for one or all cities."`
	Backtest BacktestCmd `cmd:"" help:"Compare stored predictions with observed readings."`
}

func main() {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pmforecast"),
		kong.Description("Next-day PM2.5/PM10 forecast correction service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}
