package storage

import (
	"database/sql"
	"fmt"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	// Single writer; sqlite serializes writes anyway and this keeps
	// the in-memory DSN on one connection.
	db.SetMaxOpenConns(1)

	d.DB = db

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// Tables must survive restarts: gap detection after downtime depends on
	// the raw tier's history being present.
	query := `
		CREATE TABLE IF NOT EXISTS price_raw (
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL DEFAULT '0',
			PRIMARY KEY (symbol, exchange, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create price_raw: %w", err)
	}
	if _, err := d.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_price_raw_symbol_ts ON price_raw (symbol, timestamp)`); err != nil {
		return fmt.Errorf("failed to index price_raw: %w", err)
	}

	for _, tier := range models.CandleTiers {
		table := tierTables[tier]
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				exchange TEXT NOT NULL,
				window_start INTEGER NOT NULL,
				open TEXT NOT NULL,
				high TEXT NOT NULL,
				low TEXT NOT NULL,
				close TEXT NOT NULL,
				volume_sum TEXT NOT NULL DEFAULT '0',
				PRIMARY KEY (symbol, exchange, window_start)
			);
		`, table)
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
		query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_symbol_ws ON %s (symbol, window_start)`, table, table)
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to index %s: %w", table, err)
		}
	}

	query = `
		CREATE TABLE IF NOT EXISTS coins (
			symbol TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			gecko_id TEXT NOT NULL DEFAULT '',
			price_usd REAL NOT NULL DEFAULT 0,
			high_24h REAL NOT NULL DEFAULT 0,
			low_24h REAL NOT NULL DEFAULT 0,
			change_1h REAL NOT NULL DEFAULT 0,
			change_24h REAL NOT NULL DEFAULT 0,
			change_7d REAL NOT NULL DEFAULT 0,
			change_30d REAL NOT NULL DEFAULT 0,
			volume_24h REAL NOT NULL DEFAULT 0,
			market_cap REAL NOT NULL DEFAULT 0,
			circulating_supply REAL NOT NULL DEFAULT 0,
			market_cap_rank INTEGER NOT NULL DEFAULT 0,
			exchange_count INTEGER NOT NULL DEFAULT 0,
			last_updated INTEGER NOT NULL DEFAULT 0
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create coins: %w", err)
	}

	d.Logger.Info("SQLiteDB initialized (path: %s)", d.Config.Storage.DBPath)
	return nil
}

// -----------------------------------------------------------------------------
// Raw tier
// -----------------------------------------------------------------------------

func (d *SQLiteDB) SavePricePoints(points []models.MPricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO price_raw (symbol, exchange, timestamp, price, volume)
		VALUES (?, ?, ?, ?, ?)
	`)
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

func (d *SQLiteDB) HasPricePoint(symbol, exchange string, ts time.Time) (bool, error) {
	var one int
	err := d.DB.QueryRow(
		`SELECT 1 FROM price_raw WHERE symbol = ? AND exchange = ? AND timestamp = ? LIMIT 1`,
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

func (d *SQLiteDB) PricePointsRange(symbol, exchange string, start, end time.Time) ([]models.MPricePoint, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, exchange, timestamp, price, volume
		FROM price_raw
		WHERE symbol = ? AND exchange = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, symbol, exchange, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.scanPricePoints(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) LatestAverageTimestamp(symbol string) (time.Time, bool, error) {
	var ts int64
	err := d.DB.QueryRow(`
		SELECT timestamp FROM price_raw
		WHERE symbol = ? AND exchange = ?
		ORDER BY timestamp DESC LIMIT 1
	`, symbol, models.ExchangeAverage).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) EarliestAveragePriceSince(symbol string, since time.Time) (models.MPricePoint, bool, error) {
	row := d.DB.QueryRow(`
		SELECT symbol, exchange, timestamp, price, volume
		FROM price_raw
		WHERE symbol = ? AND exchange = ? AND timestamp >= ?
		ORDER BY timestamp ASC LIMIT 1
	`, symbol, models.ExchangeAverage, since.UTC().Unix())

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

func (d *SQLiteDB) SeriesInRange(tier string, start, end time.Time) ([]models.MSeriesKey, error) {
	table, err := tableFor(tier)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT symbol, exchange FROM %s
		WHERE %s >= ? AND %s < ?
	`, table, timeColumn(tier), timeColumn(tier))

	rows, err := d.DB.Query(query, start.UTC().Unix(), end.UTC().Unix())
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

func (d *SQLiteDB) CandleExists(tier, symbol, exchange string, windowStart time.Time) (bool, error) {
	table, err := tableFor(tier)
	if err != nil {
		return false, err
	}

	var one int
	err = d.DB.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE symbol = ? AND exchange = ? AND window_start = ? LIMIT 1`, table),
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

func (d *SQLiteDB) CandlesRange(tier, symbol, exchange string, start, end time.Time) ([]models.MCandle, error) {
	table, err := tableFor(tier)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, window_start, open, high, low, close, volume_sum
		FROM %s
		WHERE symbol = ? AND exchange = ? AND window_start >= ? AND window_start < ?
		ORDER BY window_start ASC
	`, table), symbol, exchange, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.scanCandles(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveCandles(tier string, candles []models.MCandle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	table, err := tableFor(tier)
	if err != nil {
		return 0, err
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (symbol, exchange, window_start, open, high, low, close, volume_sum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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

func (d *SQLiteDB) ChartCandles(tier, symbol, exchange string, limit int) ([]models.MCandle, error) {
	table, err := tableFor(tier)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, exchange, window_start, open, high, low, close, volume_sum
		FROM %s
		WHERE symbol = ? AND exchange = ?
		ORDER BY window_start DESC LIMIT ?
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

func (d *SQLiteDB) ChartPricePoints(symbol, exchange string, limit int) ([]models.MPricePoint, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, exchange, timestamp, price, volume
		FROM price_raw
		WHERE symbol = ? AND exchange = ?
		ORDER BY timestamp DESC LIMIT ?
	`, symbol, exchange, limit)
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

func (d *SQLiteDB) DeleteOlderThan(tier string, cutoff time.Time) (int64, error) {
	table, err := tableFor(tier)
	if err != nil {
		return 0, err
	}

	res, err := d.DB.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, table, timeColumn(tier)),
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

func (d *SQLiteDB) UpsertCoins(coins []models.MCoin) (int, error) {
	if len(coins) == 0 {
		return 0, nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO coins (
			symbol, price_usd, high_24h, low_24h,
			change_1h, change_24h, change_7d, change_30d,
			volume_24h, exchange_count, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price_usd = excluded.price_usd,
			high_24h = excluded.high_24h,
			low_24h = excluded.low_24h,
			change_1h = excluded.change_1h,
			change_24h = excluded.change_24h,
			change_7d = excluded.change_7d,
			change_30d = excluded.change_30d,
			volume_24h = excluded.volume_24h,
			exchange_count = excluded.exchange_count,
			last_updated = excluded.last_updated
	`)
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

func (d *SQLiteDB) SetCoinMetadata(meta models.MCoinMetadata) error {
	_, err := d.DB.Exec(`
		UPDATE coins SET name = ?, gecko_id = ?, market_cap = ?, circulating_supply = ?
		WHERE symbol = ?
	`, meta.Name, meta.GeckoID, meta.MarketCap, meta.CirculatingSupply, meta.Symbol)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) RecomputeRanks() (int, error) {
	rows, err := d.DB.Query(`SELECT symbol FROM coins WHERE market_cap > 0 ORDER BY market_cap DESC, symbol ASC`)
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
		res, err := tx.Exec(`UPDATE coins SET market_cap_rank = ? WHERE symbol = ? AND market_cap_rank != ?`, i+1, sym, i+1)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed++
		}
	}

	res, err := tx.Exec(`UPDATE coins SET market_cap_rank = 0 WHERE market_cap <= 0 AND market_cap_rank != 0`)
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

func (d *SQLiteDB) ListCoins() ([]models.MCoin, error) {
	rows, err := d.DB.Query(coinSelect + ` ORDER BY CASE WHEN market_cap_rank = 0 THEN 1 ELSE 0 END, market_cap_rank ASC, symbol ASC`)
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

func (d *SQLiteDB) GetCoin(symbol string) (models.MCoin, bool, error) {
	rows, err := d.DB.Query(coinSelect+` WHERE symbol = ?`, symbol)
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

func (d *SQLiteDB) ListSymbols() ([]string, error) {
	return d.symbolQuery(`SELECT symbol FROM coins ORDER BY symbol ASC`)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CoinsWithoutMetadata() ([]string, error) {
	return d.symbolQuery(`SELECT symbol FROM coins WHERE gecko_id = '' ORDER BY symbol ASC`)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) StaleSymbols(threshold time.Time) ([]string, error) {
	return d.symbolQuery(
		`SELECT symbol FROM coins WHERE last_updated < ? ORDER BY symbol ASC`,
		threshold.UTC().Unix(),
	)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) symbolQuery(query string, args ...interface{}) ([]string, error) {
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

func (d *SQLiteDB) scanPricePoints(rows *sql.Rows) ([]models.MPricePoint, error) {
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

func (d *SQLiteDB) scanCandles(rows *sql.Rows) ([]models.MCandle, error) {
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

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
