package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/finnews/internal/alert"
	"horse.fit/finnews/internal/cli"
	"horse.fit/finnews/internal/config"
	"horse.fit/finnews/internal/db"
	"horse.fit/finnews/internal/logging"
)

func runOnce(args []string) int {
	fs := flag.NewFlagSet("run-once", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall cycle timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("run-once failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	hub := alert.NewHub(logger, cfg.AlertHistorySize)

	service, err := buildService(cfg, pool, hub, logger)
	if err != nil {
		logger.Error().Err(err).Msg("run-once failed to assemble pipeline")
		fmt.Fprintf(os.Stderr, "Failed to assemble pipeline: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	run := service.RunCycle(ctx)

	encoded, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode run stats: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))

	if run.New == 0 && len(run.Errors) > 0 && run.SourcesOK == 0 {
		return 1
	}
	return 0
}
