package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coin-observer/src/aggregation"
	"coin-observer/src/coingecko"
	"coin-observer/src/config"
	"coin-observer/src/exchange"
	"coin-observer/src/history"
	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"
	"coin-observer/src/network"
	"coin-observer/src/pricing"
	"coin-observer/src/scheduler"
	"coin-observer/src/server"
	"coin-observer/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// 1. Storage
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger.Named("PostgresDB"))
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteDB(cfg.MConfig, appLogger.Named("SQLiteDB"))
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 2. Network and venue adapters
	var netMgr interfaces.INetworkManager = network.NewNetworkManager(cfg.MConfig, appLogger.Named("Network"))

	venues, err := exchange.FromConfig(cfg.MConfig, netMgr, appLogger.Named("Exchanges"))
	if err != nil {
		appLogger.Critical("Failed to build exchange adapters: %v", err)
	}

	// 3. Domain services
	pricer := pricing.NewService(db, appLogger.Named("Pricing"))
	aggregator := aggregation.NewAggregator(db, appLogger.Named("Aggregator"))

	var provider interfaces.IHistoryProvider = coingecko.NewClient(cfg.MConfig, netMgr, appLogger.Named("CoinGecko"))

	sched := scheduler.NewScheduler(appLogger.Named("Scheduler"))
	backfiller := history.NewBackfiller(db, provider, sched, cfg.History, appLogger.Named("Backfiller"))

	// 4. API server
	srv := server.NewAPIServer(cfg.MConfig, db, sched, backfiller.Detector, backfiller, appLogger.Named("Server"))

	// 5. Jobs
	registerJobs(cfg.MConfig, sched, db, venues, pricer, aggregator, backfiller, srv, appLogger)

	// 6. Startup gap check before periodic work begins
	if err := backfiller.StartupCheck(cfg.History.MaxGapHours); err != nil {
		appLogger.Warning("Startup gap check failed: %v", err)
	}

	if err := sched.Start(); err != nil {
		appLogger.Critical("Failed to start scheduler: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 7. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	sched.Stop()
}

// -----------------------------------------------------------------------------

func registerJobs(
	cfg *models.MConfig,
	sched *scheduler.Scheduler,
	db interfaces.IDatabase,
	venues *exchange.Manager,
	pricer *pricing.Service,
	aggregator *aggregation.Aggregator,
	backfiller *history.Backfiller,
	srv *server.APIServer,
	appLogger *logger.Logger,
) {
	add := func(name string, interval time.Duration, run func() error) {
		if err := sched.AddJob(name, interval, run); err != nil {
			appLogger.Critical("Failed to register job %s: %v", name, err)
		}
	}

	// price_update: fetch all venues, store raw ticks and averages, refresh
	// coin snapshots, broadcast to websocket clients.
	add("price_update", time.Duration(cfg.Scheduler.PriceUpdateSeconds)*time.Second, func() error {
		tickers := venues.FetchAll()
		if len(tickers) == 0 {
			appLogger.Warning("No tickers fetched this cycle")
			return nil
		}

		_, averages, err := pricer.ProcessTickers(tickers)
		if err != nil {
			return err
		}

		prices := make(map[string]models.MCoin, len(averages))
		for symbol := range averages {
			if coin, ok, err := db.GetCoin(symbol); err == nil && ok {
				prices[symbol] = coin
			}
		}

		byVenue := make(map[string][]models.MTicker)
		for _, t := range tickers {
			byVenue[t.Exchange] = append(byVenue[t.Exchange], t)
		}
		srv.PublishUpdate(prices, byVenue)
		return nil
	})

	// aggregation: roll raw ticks up through the candle tiers.
	add("aggregation", time.Duration(cfg.Scheduler.AggregationMinutes)*time.Minute, func() error {
		aggregator.RunAll()
		return nil
	})

	// cleanup: enforce per-tier retention. The 1w tier is kept forever.
	add("cleanup", time.Duration(cfg.Scheduler.CleanupHours)*time.Hour, func() error {
		now := time.Now().UTC()
		cutoffs := map[string]time.Time{
			models.TierRaw: now.Add(-time.Duration(cfg.Retention.RawHours) * time.Hour),
			models.Tier5m:  now.AddDate(0, 0, -cfg.Retention.Tier5mD),
			models.Tier1h:  now.AddDate(0, 0, -cfg.Retention.Tier1hD),
			models.Tier1d:  now.AddDate(0, 0, -cfg.Retention.Tier1dD),
		}

		for tier, cutoff := range cutoffs {
			deleted, err := db.DeleteOlderThan(tier, cutoff)
			if err != nil {
				return fmt.Errorf("cleanup of %s tier: %w", tier, err)
			}
			if deleted > 0 {
				appLogger.Info("Cleanup removed %d rows from %s tier", deleted, tier)
			}
		}
		return nil
	})

	// discovery: enrich coins that still lack catalog metadata and backfill
	// the ones with no history at all.
	add("discovery", time.Duration(cfg.Scheduler.DiscoveryHours)*time.Hour, func() error {
		return backfiller.EnrichNewSymbols()
	})

	// health: count symbols whose data has gone stale.
	add("health", time.Duration(cfg.Scheduler.HealthHours)*time.Hour, func() error {
		stale, err := db.StaleSymbols(time.Now().UTC().Add(-5 * time.Minute))
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			appLogger.Warning("Health check: %d symbols stale: %v", len(stale), stale)
		} else {
			appLogger.Info("Health check: all symbols fresh")
		}
		return nil
	})
}
