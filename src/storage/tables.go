package storage

import (
	"database/sql"
	"fmt"
	"time"

	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Tier to table mapping shared by both drivers.
// -----------------------------------------------------------------------------

var tierTables = map[string]string{
	models.TierRaw: "price_raw",
	models.Tier5m:  "candles_5m",
	models.Tier1h:  "candles_1h",
	models.Tier1d:  "candles_1d",
	models.Tier1w:  "candles_1w",
}

// -----------------------------------------------------------------------------

func tableFor(tier string) (string, error) {
	table, ok := tierTables[tier]
	if !ok {
		return "", fmt.Errorf("unknown tier '%s'", tier)
	}
	return table, nil
}

// -----------------------------------------------------------------------------

// timeColumn returns the timestamp column name of a tier's table.
func timeColumn(tier string) string {
	if tier == models.TierRaw {
		return "timestamp"
	}
	return "window_start"
}

// -----------------------------------------------------------------------------

// parseDecimal converts a stored decimal string back into a decimal.Decimal.
// Malformed rows are a data invariant violation: the caller logs and skips.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// -----------------------------------------------------------------------------
// Shared row scanning
// -----------------------------------------------------------------------------

const coinSelect = `
	SELECT symbol, name, gecko_id, price_usd, high_24h, low_24h,
	       change_1h, change_24h, change_7d, change_30d,
	       volume_24h, market_cap, circulating_supply,
	       market_cap_rank, exchange_count, last_updated
	FROM coins`

// -----------------------------------------------------------------------------

func scanCoin(rows *sql.Rows) (models.MCoin, error) {
	var (
		c       models.MCoin
		updated int64
	)
	err := rows.Scan(
		&c.Symbol, &c.Name, &c.GeckoID, &c.PriceUSD, &c.High24h, &c.Low24h,
		&c.Change1h, &c.Change24h, &c.Change7d, &c.Change30d,
		&c.Volume24h, &c.MarketCap, &c.CirculatingSupply,
		&c.MarketCapRank, &c.ExchangeCount, &updated,
	)
	if err != nil {
		return models.MCoin{}, err
	}
	c.LastUpdated = time.Unix(updated, 0).UTC()
	return c, nil
}

// -----------------------------------------------------------------------------

func scanCandleRow(rows *sql.Rows) (models.MCandle, error) {
	var (
		c                              models.MCandle
		ws                             int64
		open, high, low, closeStr, vol string
	)
	if err := rows.Scan(&c.Symbol, &c.Exchange, &ws, &open, &high, &low, &closeStr, &vol); err != nil {
		return models.MCandle{}, err
	}

	var err error
	if c.Open, err = parseDecimal(open); err != nil {
		return models.MCandle{}, err
	}
	if c.High, err = parseDecimal(high); err != nil {
		return models.MCandle{}, err
	}
	if c.Low, err = parseDecimal(low); err != nil {
		return models.MCandle{}, err
	}
	if c.Close, err = parseDecimal(closeStr); err != nil {
		return models.MCandle{}, err
	}
	if c.VolumeSum, err = parseDecimal(vol); err != nil {
		return models.MCandle{}, err
	}
	c.WindowStart = time.Unix(ws, 0).UTC()
	return c, nil
}

// -----------------------------------------------------------------------------

func scanPricePointRow(row *sql.Row) (models.MPricePoint, error) {
	var (
		p          models.MPricePoint
		ts         int64
		price, vol string
	)
	if err := row.Scan(&p.Symbol, &p.Exchange, &ts, &price, &vol); err != nil {
		return models.MPricePoint{}, err
	}

	var err error
	if p.Price, err = parseDecimal(price); err != nil {
		return models.MPricePoint{}, err
	}
	if p.Volume, err = parseDecimal(vol); err != nil {
		return models.MPricePoint{}, err
	}
	p.Timestamp = time.Unix(ts, 0).UTC()
	return p, nil
}

// -----------------------------------------------------------------------------

func reverseCandles(candles []models.MCandle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}

func reversePoints(points []models.MPricePoint) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}
