package main

import (
	"flag"
	"fmt"
	"os"

	"KPISentinel/internal/di"
	"KPISentinel/pkg/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kpi-sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("kpi-sentinel", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to the YAML config; KPI_* env vars override it")
	checkOnly := fs.Bool("check", false, "validate the configuration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *checkOnly {
		fmt.Printf("config ok: env=%s window=%d min_samples=%d interval=%s\n",
			cfg.Environment, cfg.Series.WindowSize, cfg.Analysis.MinSamples, cfg.Monitor.Interval)
		return nil
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return app.Run()
}
