package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	schema := sanitizeSchema(cfg.Name)
	if schema == "" {
		return nil, fmt.Errorf("cannot derive schema name from app name '%s'", cfg.Name)
	}

	return &PostgresDB{
		Config: cfg,
		Schema: schema,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func sanitizeSchema(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

func (d *PostgresDB) tierTable(tier string) (string, error) {
	table, err := tableFor(tier)
	if err != nil {
		return "", err
	}
	return d.table(table), nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	// Tables must survive restarts: gap detection after downtime depends on
	// the raw tier's history being present.
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			price NUMERIC(30,8) NOT NULL,
			volume NUMERIC(30,2) NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, exchange, timestamp)
		);
	`, d.table("price_raw"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create price_raw: %w", err)
	}
	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_price_raw_symbol_ts ON %s (symbol, timestamp)`, d.table("price_raw"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index price_raw: %w", err)
	}

	for _, tier := range models.CandleTiers {
		table := tierTables[tier]
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				exchange TEXT NOT NULL,
				window_start BIGINT NOT NULL,
				open NUMERIC(30,8) NOT NULL,
				high NUMERIC(30,8) NOT NULL,
				low NUMERIC(30,8) NOT NULL,
				close NUMERIC(30,8) NOT NULL,
				volume_sum NUMERIC(30,2) NOT NULL DEFAULT 0,
				PRIMARY KEY (symbol, exchange, window_start)
			);
		`, d.table(table))
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
		query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_symbol_ws ON %s (symbol, window_start)`, table, d.table(table))
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to index %s: %w", table, err)
		}
	}

	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			gecko_id TEXT NOT NULL DEFAULT '',
			price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			high_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			low_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_30d DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			circulating_supply DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap_rank INTEGER NOT NULL DEFAULT 0,
			exchange_count INTEGER NOT NULL DEFAULT 0,
			last_updated BIGINT NOT NULL DEFAULT 0
		);
	`, d.table("coins"))
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create coins: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Raw tier
// -----------------------------------------------------------------------------

func (d *PostgresDB) SavePricePoints(points []models.MPricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, exchange, timestamp, price, volume)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, exchange, timestamp) DO NOTHING
	`, d.table("price_raw")))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range points {
		res, err := stmt.Exec(p.Symbol, p.Exchange, p.Timestamp.UTC().Unix(), p.Price.String(), p.Volume.String())
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) HasPricePoint(symbol, exchange string, ts time.Time) (bool, error) {
	var one int
	err := d.DB.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE symbol = $1 AND exchange = $2 AND timestamp = $3 LIMIT 1`, d.table("price_raw")),
		symbol, exchange, ts.UTC().Unix(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) PricePointsRange(symbol, exchange string, start, end time.Time) ([]models.MPricePoint, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, timestamp, price::text, volume::text
		FROM %s
		WHERE symbol = $1 AND exchange = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC
	`, d.table("price_raw")), symbol, exchange, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.scanPricePoints(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LatestAverageTimestamp(symbol string) (time.Time, bool, error) {
	var ts int64
	err := d.DB.QueryRow(fmt.Sprintf(`
		SELECT timestamp FROM %s
		WHERE symbol = $1 AND exchange = $2
		ORDER BY timestamp DESC LIMIT 1
	`, d.table("price_raw")), symbol, models.ExchangeAverage).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) EarliestAveragePriceSince(symbol string, since time.Time) (models.MPricePoint, bool, error) {
	row := d.DB.QueryRow(fmt.Sprintf(`
		SELECT symbol, exchange, timestamp, price::text, volume::text
		FROM %s
		WHERE symbol = $1 AND exchange = $2 AND timestamp >= $3
		ORDER BY timestamp ASC LIMIT 1
	`, d.table("price_raw")), symbol, models.ExchangeAverage, since.UTC().Unix())

	p, err := scanPricePointRow(row)
	if err == sql.ErrNoRows {
		return models.MPricePoint{}, false, nil
	}
	if err != nil {
		return models.MPricePoint{}, false, err
	}
	return p, true, nil
}

// -----------------------------------------------------------------------------
// Candle tiers
// -----------------------------------------------------------------------------

func (d *PostgresDB) SeriesInRange(tier string, start, end time.Time) ([]models.MSeriesKey, error) {
	table, err := d.tierTable(tier)
	if err != nil {
		return nil, err
	}

	col := timeColumn(tier)
	rows, err := d.DB.Query(
		fmt.Sprintf(`SELECT DISTINCT symbol, exchange FROM %s WHERE %s >= $1 AND %s < $2`, table, col, col),
		start.UTC().Unix(), end.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.MSeriesKey
	for rows.Next() {
		var k models.MSeriesKey
		if err := rows.Scan(&k.Symbol, &k.Exchange); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CandleExists(tier, symbol, exchange string, windowStart time.Time) (bool, error) {
	table, err := d.tierTable(tier)
	if err != nil {
		return false, err
	}

	var one int
	err = d.DB.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE symbol = $1 AND exchange = $2 AND window_start = $3 LIMIT 1`, table),
		symbol, exchange, windowStart.UTC().Unix(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CandlesRange(tier, symbol, exchange string, start, end time.Time) ([]models.MCandle, error) {
	table, err := d.tierTable(tier)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, window_start, open::text, high::text, low::text, close::text, volume_sum::text
		FROM %s
		WHERE symbol = $1 AND exchange = $2 AND window_start >= $3 AND window_start < $4
		ORDER BY window_start ASC
	`, table), symbol, exchange, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.scanCandles(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveCandles(tier string, candles []models.MCandle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	table, err := d.tierTable(tier)
	if err != nil {
		return 0, err
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, exchange, window_start, open, high, low, close, volume_sum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, exchange, window_start) DO NOTHING
	`, table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range candles {
		res, err := stmt.Exec(
			c.Symbol, c.Exchange, c.WindowStart.UTC().Unix(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.VolumeSum.String(),
		)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ChartCandles(tier, symbol, exchange string, limit int) ([]models.MCandle, error) {
	table, err := d.tierTable(tier)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, window_start, open::text, high::text, low::text, close::text, volume_sum::text
		FROM %s
		WHERE symbol = $1 AND exchange = $2
		ORDER BY window_start DESC LIMIT $3
	`, table), symbol, exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candles, err := d.scanCandles(rows)
	if err != nil {
		return nil, err
	}
	reverseCandles(candles)
	return candles, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ChartPricePoints(symbol, exchange string, limit int) ([]models.MPricePoint, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, timestamp, price::text, volume::text
		FROM %s
		WHERE symbol = $1 AND exchange = $2
		ORDER BY timestamp DESC LIMIT $3
	`, d.table("price_raw")), symbol, exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points, err := d.scanPricePoints(rows)
	if err != nil {
		return nil, err
	}
	reversePoints(points)
	return points, nil
}

// -----------------------------------------------------------------------------
// Retention
// -----------------------------------------------------------------------------

func (d *PostgresDB) DeleteOlderThan(tier string, cutoff time.Time) (int64, error) {
	table, err := d.tierTable(tier)
	if err != nil {
		return 0, err
	}

	res, err := d.DB.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, table, timeColumn(tier)),
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------
// Tracked symbols / metadata
// -----------------------------------------------------------------------------

func (d *PostgresDB) UpsertCoins(coins []models.MCoin) (int, error) {
	if len(coins) == 0 {
		return 0, nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (
			symbol, price_usd, high_24h, low_24h,
			change_1h, change_24h, change_7d, change_30d,
			volume_24h, exchange_count, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			high_24h = EXCLUDED.high_24h,
			low_24h = EXCLUDED.low_24h,
			change_1h = EXCLUDED.change_1h,
			change_24h = EXCLUDED.change_24h,
			change_7d = EXCLUDED.change_7d,
			change_30d = EXCLUDED.change_30d,
			volume_24h = EXCLUDED.volume_24h,
			exchange_count = EXCLUDED.exchange_count,
			last_updated = EXCLUDED.last_updated
	`, d.table("coins")))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for _, c := range coins {
		_, err := stmt.Exec(
			c.Symbol, c.PriceUSD, c.High24h, c.Low24h,
			c.Change1h, c.Change24h, c.Change7d, c.Change30d,
			c.Volume24h, c.ExchangeCount, c.LastUpdated.UTC().Unix(),
		)
		if err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SetCoinMetadata(meta models.MCoinMetadata) error {
	_, err := d.DB.Exec(fmt.Sprintf(`
		UPDATE %s SET name = $1, gecko_id = $2, market_cap = $3, circulating_supply = $4
		WHERE symbol = $5
	`, d.table("coins")), meta.Name, meta.GeckoID, meta.MarketCap, meta.CirculatingSupply, meta.Symbol)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecomputeRanks() (int, error) {
	rows, err := d.DB.Query(fmt.Sprintf(
		`SELECT symbol FROM %s WHERE market_cap > 0 ORDER BY market_cap DESC, symbol ASC`, d.table("coins"),
	))
	if err != nil {
		return 0, err
	}
	var ranked []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return 0, err
		}
		ranked = append(ranked, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	changed := 0
	for i, sym := range ranked {
		res, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET market_cap_rank = $1 WHERE symbol = $2 AND market_cap_rank != $1`, d.table("coins")),
			i+1, sym,
		)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed++
		}
	}

	res, err := tx.Exec(fmt.Sprintf(
		`UPDATE %s SET market_cap_rank = 0 WHERE market_cap <= 0 AND market_cap_rank != 0`, d.table("coins"),
	))
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		changed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListCoins() ([]models.MCoin, error) {
	query := strings.Replace(coinSelect, "FROM coins", "FROM "+d.table("coins"), 1) +
		` ORDER BY CASE WHEN market_cap_rank = 0 THEN 1 ELSE 0 END, market_cap_rank ASC, symbol ASC`
	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coins []models.MCoin
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetCoin(symbol string) (models.MCoin, bool, error) {
	query := strings.Replace(coinSelect, "FROM coins", "FROM "+d.table("coins"), 1) + ` WHERE symbol = $1`
	rows, err := d.DB.Query(query, symbol)
	if err != nil {
		return models.MCoin{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return models.MCoin{}, false, rows.Err()
	}
	c, err := scanCoin(rows)
	if err != nil {
		return models.MCoin{}, false, err
	}
	return c, true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListSymbols() ([]string, error) {
	return d.symbolQuery(fmt.Sprintf(`SELECT symbol FROM %s ORDER BY symbol ASC`, d.table("coins")))
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CoinsWithoutMetadata() ([]string, error) {
	return d.symbolQuery(fmt.Sprintf(`SELECT symbol FROM %s WHERE gecko_id = '' ORDER BY symbol ASC`, d.table("coins")))
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) StaleSymbols(threshold time.Time) ([]string, error) {
	return d.symbolQuery(
		fmt.Sprintf(`SELECT symbol FROM %s WHERE last_updated < $1 ORDER BY symbol ASC`, d.table("coins")),
		threshold.UTC().Unix(),
	)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) symbolQuery(query string, args ...interface{}) ([]string, error) {
	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) scanPricePoints(rows *sql.Rows) ([]models.MPricePoint, error) {
	var points []models.MPricePoint
	for rows.Next() {
		var (
			p          models.MPricePoint
			ts         int64
			price, vol string
		)
		if err := rows.Scan(&p.Symbol, &p.Exchange, &ts, &price, &vol); err != nil {
			return nil, err
		}
		dec, err := parseDecimal(price)
		if err != nil {
			d.Logger.Warning("Skipping malformed price row for %s/%s: %v", p.Symbol, p.Exchange, err)
			continue
		}
		p.Price = dec
		if p.Volume, err = parseDecimal(vol); err != nil {
			d.Logger.Warning("Skipping malformed volume row for %s/%s: %v", p.Symbol, p.Exchange, err)
			continue
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) scanCandles(rows *sql.Rows) ([]models.MCandle, error) {
	var candles []models.MCandle
	for rows.Next() {
		c, err := scanCandleRow(rows)
		if err != nil {
			d.Logger.Warning("Skipping malformed candle row: %v", err)
			continue
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
