package main

import (
	"context"
	"fmt"
	"os"

	"github.com/crmkit/b24/dealsync/schema/postgres"
	"github.com/crmkit/b24/dealsync/services"
	"github.com/crmkit/b24/pkg/bitrix24"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := bitrix24.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize database connection
	dbCfg := postgres.NewConfig()
	db, err := postgres.New(dbCfg, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Create Bitrix24 client
	client := bitrix24.NewWithLogger(cfg, logger)

	// Create deal service
	dealSvc := services.NewDealService(db, logger)

	// Create sync service
	syncSvc := services.NewSyncService(client, dealSvc, logger)

	// Fetch and persist all deals
	ctx := context.Background()
	metrics, err := syncSvc.SyncDeals(ctx)
	if err != nil {
		logger.Error("Failed to sync deals", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Successfully completed deal sync")
	fmt.Printf("Sync Metrics:\n")
	fmt.Printf("  Pages: %d\n", metrics.Pages)
	fmt.Printf("  Deals: %d succeeded, %d failed\n", metrics.DealsSucceeded, metrics.DealsFailed)
	fmt.Printf("  Total: %d\n", metrics.Total())
}
