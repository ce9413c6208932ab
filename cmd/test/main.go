package main

// Local smoke harness: seeds an in-memory database with synthetic ticks,
// runs one aggregation cycle and prints the resulting candles. Useful for
// eyeballing the pipeline without any network access.

import (
	"fmt"
	"os"
	"time"

	"coin-observer/src/aggregation"
	"coin-observer/src/logger"
	"coin-observer/src/models"
	"coin-observer/src/storage"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

func main() {
	log := logger.NewLogger("DEBUG", "smoke")

	cfg := &models.MConfig{
		Name:    "smoke",
		Storage: models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"},
	}

	db, err := storage.NewSQLiteDB(cfg, log.Named("SQLiteDB"))
	if err != nil {
		fmt.Printf("db setup failed: %v\n", err)
		os.Exit(1)
	}
	if err := db.Initialize(); err != nil {
		fmt.Printf("db init failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 30 minutes of synthetic BTC ticks, one every 30 seconds.
	base := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Minute)
	var points []models.MPricePoint
	for i := 0; i < 60; i++ {
		price := decimal.NewFromInt(50000).Add(decimal.NewFromInt(int64(i * 10)))
		points = append(points, models.MPricePoint{
			Symbol:    "BTC",
			Exchange:  models.ExchangeAverage,
			Price:     price,
			Volume:    decimal.NewFromInt(100),
			Timestamp: base.Add(time.Duration(i) * 30 * time.Second),
		})
	}

	stored, err := db.SavePricePoints(points)
	if err != nil {
		fmt.Printf("seed failed: %v\n", err)
		os.Exit(1)
	}
	log.Info("Seeded %d raw ticks", stored)

	agg := aggregation.NewAggregator(db, log.Named("Aggregator"))
	results := agg.RunAll()
	for tier, created := range results {
		log.Info("Tier %s: %d candles created", tier, created)
	}

	candles, err := db.ChartCandles(models.Tier5m, "BTC", models.ExchangeAverage, 10)
	if err != nil {
		fmt.Printf("chart query failed: %v\n", err)
		os.Exit(1)
	}

	for _, c := range candles {
		fmt.Printf("%s  O=%s H=%s L=%s C=%s V=%s\n",
			c.WindowStart.Format(time.RFC3339),
			c.Open, c.High, c.Low, c.Close, c.VolumeSum)
	}
}
