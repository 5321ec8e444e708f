package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civitai-scraper/internal/config"
	"civitai-scraper/internal/database"
	"civitai-scraper/internal/lock"
	"civitai-scraper/internal/monitoring"
	"civitai-scraper/internal/prompts"
	"civitai-scraper/internal/scraper"
	"civitai-scraper/internal/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *database.DB
	monitor *monitoring.Monitor
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup always happens.
func run() (err error) {
	var (
		configFile      = flag.String("config", "configs/config.yaml", "Configuration file path")
		incremental     = flag.Bool("incremental", false, "Stop at the first image already on disk and merge the prompt files")
		cleanDuplicates = flag.Bool("clean-duplicates", false, "Move images present in both directories out of the NSFW directory and exit")
		schedule        = flag.String("schedule", "", "Cron expression; keep running and harvest on this schedule")
		debug           = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return err
	}
	if *incremental {
		cfg.Schedule.Incremental = true
	}
	if *schedule != "" {
		cfg.Schedule.Cron = *schedule
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return err
	}

	logger, closer, err := utils.NewLogger(cfg.Logging, *debug)
	if err != nil {
		log.Printf("Failed to set up logging: %v", err)
		return err
	}
	defer closer.Close()
	defer func() {
		if err != nil {
			logger.Errorf("%v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:     cfg,
		logger:  logger,
		monitor: monitoring.NewMonitor(logger, cfg.Monitoring.MetricsFile),
	}

	if cfg.Database.Enabled() {
		db, err := database.NewConnection(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.db = db
	}

	switch {
	case *cleanDuplicates:
		return a.cleanDuplicates()
	case cfg.Schedule.Cron != "":
		return a.runScheduled(ctx, cfg.Schedule.Cron)
	default:
		_, err = a.runOnce(ctx)
		return err
	}
}

// catalog returns the database as a scraper.Catalog, or nil when it is disabled.
func (a *app) catalog() scraper.Catalog {
	if a.db == nil {
		return nil
	}
	return a.db
}

func (a *app) runOnce(ctx context.Context) (*scraper.RunResult, error) {
	lk, err := lock.Acquire(a.cfg.Output.LockFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			a.logger.Warnf("%v", err)
		}
	}()

	runID := monitoring.NewRunID()
	a.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"username":    a.cfg.Civitai.Username,
		"incremental": a.cfg.Schedule.Incremental,
	}).Info("Starting harvest")

	client := scraper.NewClient(a.cfg.Civitai, a.logger)
	downloader := scraper.NewDownloader(client, a.cfg.Output.ImagesDir, a.cfg.Output.NSFWImagesDir, a.logger)
	if err := downloader.Prepare(); err != nil {
		return nil, err
	}

	excluded, err := prompts.LoadExcludedWords(a.cfg.Output.ExcludedWordsFile)
	if err != nil {
		return nil, err
	}
	a.logger.Infof("Loaded %d excluded words", len(excluded))

	harvester := scraper.NewHarvester(client, downloader, prompts.NewCleaner(excluded), a.catalog(), scraper.Options{
		BaseURL:         a.cfg.Civitai.BaseURL,
		Token:           a.cfg.Civitai.Token,
		Username:        a.cfg.Civitai.Username,
		SFWPromptsFile:  a.cfg.Output.SFWPromptsFile,
		NSFWPromptsFile: a.cfg.Output.NSFWPromptsFile,
		StopAtExisting:  a.cfg.Schedule.Incremental,
	}, a.logger)

	result, err := harvester.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest failed: %w", err)
	}

	a.monitor.RecordRun(runID, a.cfg.Civitai.Username, result.Stats, result.Duration, result.Truncated)
	a.printSummary(result)
	return result, nil
}

func (a *app) printSummary(result *scraper.RunResult) {
	stats := result.Stats
	fmt.Println("\nSummary:")
	fmt.Printf("- Total images fetched: %d\n", stats.TotalFetched)
	fmt.Printf("- SFW images: %d\n", stats.SFW)
	fmt.Printf("- NSFW images: %d\n", stats.NSFW)
	fmt.Printf("- Downloaded: %d\n", stats.Downloaded)
	fmt.Printf("- Skipped (already exist): %d\n", stats.Skipped)
	fmt.Printf("- Failed: %d\n", stats.Failed)
	fmt.Printf("- Unique SFW prompts: %d\n", result.SFWLines)
	fmt.Printf("- Unique NSFW prompts: %d\n", result.NSFWLines)
	if result.Truncated {
		fmt.Println("- Warning: pagination stopped early, the listing was not fully read")
	}
}

// runScheduled harvests on every tick of spec until ctx is cancelled. A tick
// that fires while the previous run is still going is skipped.
func (a *app) runScheduled(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(a.logger))))

	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := a.runOnce(ctx); err != nil {
			if errors.Is(err, lock.ErrLocked) {
				a.logger.Warnf("Skipping scheduled run: %v", err)
				return
			}
			a.logger.Errorf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	a.logger.Infof("Harvest scheduled with %q, waiting for the next tick", spec)

	<-ctx.Done()
	a.logger.Info("Stopping scheduler...")
	select {
	case <-c.Stop().Done():
	case <-time.After(time.Minute):
		a.logger.Warn("Timed out waiting for the running harvest to finish")
	}
	return nil
}

// cleanDuplicates moves files present in both image directories out of the
// NSFW directory and marks the catalog rows SFW.
func (a *app) cleanDuplicates() error {
	lk, err := lock.Acquire(a.cfg.Output.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			a.logger.Warnf("%v", err)
		}
	}()

	downloader := scraper.NewDownloader(nil, a.cfg.Output.ImagesDir, a.cfg.Output.NSFWImagesDir, a.logger)
	moved, err := downloader.QuarantineDuplicates(a.cfg.Output.QuarantineDir)
	if err != nil {
		return err
	}

	if a.db != nil {
		for _, name := range moved {
			if err := a.db.SetNSFW(name, false); err != nil {
				a.logger.Warnf("%v", err)
			}
		}
	}

	a.logger.Infof("Duplicate cleanup completed: %d files moved to %s", len(moved), a.cfg.Output.QuarantineDir)
	return nil
}
