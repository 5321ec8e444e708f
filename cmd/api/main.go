package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"civitai-scraper/internal/api"
	"civitai-scraper/internal/config"
	"civitai-scraper/internal/database"
	"civitai-scraper/internal/monitoring"
	"civitai-scraper/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		port       = flag.String("port", "8080", "API server port")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Database.Enabled() {
		log.Fatal("The API needs a catalog: set database.driver (or DB_DRIVER) to postgres or sqlite3")
	}

	logger, closer, err := utils.NewLogger(cfg.Logging, *debug)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	monitor := monitoring.NewMonitor(logger, cfg.Monitoring.MetricsFile)
	server := api.NewServer(db, monitor, cfg.Output, logger, *port)

	logger.Info("Available endpoints:")
	logger.Info("  GET  /api/images - List images with pagination (page, page_size, nsfw, q, username)")
	logger.Info("  GET  /api/images/{id} - Get one image")
	logger.Info("  GET  /api/stats - Catalog statistics")
	logger.Info("  GET  /api/export/csv - Export images to CSV")
	logger.Info("  GET  /api/health - Health check")
	logger.Infof("  GET  /images/, /images_nsfw/ - Files from %s and %s", cfg.Output.ImagesDir, cfg.Output.NSFWImagesDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
