package main

import (
	"flag"
	"fmt"
	"log"

	"civitai-scraper/internal/config"
	"civitai-scraper/internal/database"
	"civitai-scraper/internal/monitoring"
	"civitai-scraper/internal/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/config.yaml", "Configuration file path")
		metricsFile = flag.String("metrics", "", "Metrics file path (defaults to monitoring.metrics_file)")
		report      = flag.Bool("report", false, "Generate and display monitoring report")
		alerts      = flag.Bool("alerts", false, "Check and display alerts")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *metricsFile != "" {
		cfg.Monitoring.MetricsFile = *metricsFile
	}

	logger, closer, err := utils.NewLogger(cfg.Logging, false)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()

	monitor := monitoring.NewMonitor(logger, cfg.Monitoring.MetricsFile)

	if *report {
		fmt.Println(monitor.GenerateReport())

		if !cfg.Database.Enabled() {
			return
		}
		db, err := database.NewConnection(cfg.Database, logger)
		if err != nil {
			logger.Errorf("Failed to connect to database: %v", err)
			return
		}
		defer db.Close()

		stats, err := db.GetCatalogStats(5)
		if err != nil {
			logger.Errorf("Failed to get database stats: %v", err)
			return
		}
		fmt.Println("\nCatalog Statistics:")
		fmt.Printf("- Total Images: %d\n", stats.TotalImages)
		fmt.Printf("- SFW / NSFW: %d / %d\n", stats.SFWImages, stats.NSFWImages)
		fmt.Printf("- With Prompt: %d\n", stats.WithPrompt)
		fmt.Printf("- Last Scraped: %s\n", stats.LastScrapedAt)
		for _, mc := range stats.TopModels {
			fmt.Printf("- Model %s: %d images\n", mc.Model, mc.Count)
		}
		return
	}

	if *alerts {
		alertManager := monitoring.NewAlertManager(monitor, logger)
		active := alertManager.CheckAlerts()

		if len(active) == 0 {
			fmt.Println("No alerts - system is healthy")
		} else {
			fmt.Println("Active Alerts:")
			for _, alert := range active {
				fmt.Printf("  - %s\n", alert)
			}
			alertManager.SendAlerts(active)
		}
		return
	}

	// Default: show current status
	health := monitor.GetHealthStatus()
	fmt.Println("Civitai Scraper Status:")
	fmt.Printf("- Status: %s\n", health.Status)
	fmt.Printf("- Last Run: %s\n", health.LastRun)
	fmt.Printf("- Total Runs: %d\n", health.TotalRuns)
	fmt.Printf("- Failure Rate: %s\n", health.FailureRate)
	fmt.Printf("- Average Runtime: %s\n", health.AverageRuntime)
	for _, warning := range health.Warnings {
		fmt.Printf("- Warning: %s\n", warning)
	}
}
