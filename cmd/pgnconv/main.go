package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deepskill/pgnconv/internal/config"
	"github.com/deepskill/pgnconv/internal/convert"
	"github.com/deepskill/pgnconv/internal/logger"
	"github.com/deepskill/pgnconv/internal/metrics"
	"github.com/deepskill/pgnconv/internal/shutdown"
	"github.com/deepskill/pgnconv/internal/storage"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pgnconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a TOML config file")
	workers := fs.Int("workers", 0, "Archives converted concurrently (overrides convert.workers)")
	format := fs.String("format", "", "Output format: csv or parquet (overrides convert.format)")
	all := fs.Bool("all", false, "Convert every archive in the raw directory")
	version := fs.Bool("version", false, "Print the version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pgnconv [--config FILE] [--workers N] [--format csv|parquet] NAME...")
		fmt.Fprintln(stderr, "       pgnconv [flags] --all")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *version {
		fmt.Fprintf(stdout, "pgnconv %s\n", Version)
		return exitOK
	}

	names := fs.Args()
	if len(names) == 0 && !*all {
		fmt.Fprintln(stderr, "error: at least one archive name is required")
		fs.Usage()
		return exitUsage
	}
	if len(names) > 0 && *all {
		fmt.Fprintln(stderr, "error: --all does not take archive names")
		return exitUsage
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	// Flags win over file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Convert.Workers = *workers
		case "format":
			cfg.Convert.Format = *format
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}

	logger.SetupWithWriter(stderr, cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting pgnconv")

	m := metrics.Init(logger.Get("metrics"))

	shutdownCoordinator := shutdown.New(time.Duration(cfg.Shutdown.TimeoutSeconds)*time.Second, logger.Get("shutdown"))
	defer func() {
		if err := shutdownCoordinator.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Shutdown completed with errors")
		}
	}()

	store, err := storage.New(&cfg.Storage, cfg.Data.Root, logger.Get("storage"))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize storage: %v\n", err)
		return exitFailure
	}
	shutdownCoordinator.Register("storage", store, shutdown.PriorityStorage)

	if cfg.Metrics.TextfilePath != "" {
		shutdownCoordinator.RegisterHook("metrics-textfile", func(ctx context.Context) error {
			return m.WriteTextfile(cfg.Metrics.TextfilePath)
		}, shutdown.PriorityMetrics)
	}

	opts, err := convert.OptionsFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}

	ctx, cancel := shutdownCoordinator.NotifyContext(context.Background())
	defer cancel()

	pipeline := convert.New(store, opts, logger.Get("convert"))

	if *all {
		names, err = pipeline.Discover(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to discover archives")
			return exitFailure
		}
		if len(names) == 0 {
			log.Warn().Str("dir", cfg.Data.RawDir).Msg("No archives found")
			return exitOK
		}
	}

	shutdownCoordinator.RegisterHook("run-summary", func(ctx context.Context) error {
		snap := m.Snapshot()
		log.Info().
			Str("run_id", pipeline.RunID()).
			Interface("files_succeeded", snap["files_succeeded"]).
			Interface("files_failed", snap["files_failed"]).
			Interface("games_total", snap["games_total"]).
			Interface("storage_read_bytes_total", snap["storage_read_bytes_total"]).
			Msg("Run finished")
		return nil
	}, shutdown.PriorityPipeline)

	results, err := pipeline.Run(ctx, names)
	for _, res := range results {
		log.Info().
			Str("input", res.Input).
			Str("output", res.Output).
			Int64("games", res.Games).
			Int64("bytes_in", res.BytesIn).
			Dur("duration", res.Duration).
			Msg("Archive summary")
	}
	if err != nil {
		if shutdownCoordinator.Signalled() {
			log.Warn().Err(err).Msg("Conversion interrupted")
		} else {
			log.Error().Err(err).Msg("Conversion failed")
		}
		return exitFailure
	}

	return exitOK
}
