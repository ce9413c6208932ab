package aggregation

import (
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Aggregator rolls lower-tier rows up into OHLC candles. Candles are
// write-once: a pass only fills windows that have no row yet, and all
// candles of one pass commit in a single transaction.
type Aggregator struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewAggregator(db interfaces.IDatabase, log *logger.Logger) *Aggregator {
	return &Aggregator{
		DB:     db,
		Logger: log,
		Now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// Run executes one aggregation pass for the resolution and returns the number
// of candles created. Any failure aborts the pass with nothing written; the
// next scheduled run covers the same (wider) window again.
func (a *Aggregator) Run(res Resolution) (int, error) {
	end := res.Floor(a.Now())
	start := end.Add(-res.Lookback)

	a.Logger.Debug("Aggregating %s from %s to %s", res.Name, start.Format(time.RFC3339), end.Format(time.RFC3339))

	series, err := a.DB.SeriesInRange(res.Source, start, end)
	if err != nil {
		return 0, err
	}

	var candles []models.MCandle

	for _, key := range series {
		for ws := start; ws.Before(end); ws = ws.Add(res.Window) {
			exists, err := a.DB.CandleExists(res.Name, key.Symbol, key.Exchange, ws)
			if err != nil {
				return 0, err
			}
			if exists {
				continue
			}

			candle, ok, err := a.buildCandle(res, key, ws)
			if err != nil {
				return 0, err
			}
			if !ok {
				// Empty source bucket: no candle, the gap propagates upward.
				continue
			}
			candles = append(candles, candle)
		}
	}

	created, err := a.DB.SaveCandles(res.Name, candles)
	if err != nil {
		return 0, err
	}

	if created > 0 {
		a.Logger.Info("Created %d new %s candles", created, res.Name)
	}
	return created, nil
}

// -----------------------------------------------------------------------------

// RunAll runs every resolution in rollup order so each tier sees the output
// of the one below it within the same cycle. A failing tier is logged and
// reported as zero created; the remaining tiers still run.
func (a *Aggregator) RunAll() map[string]int {
	results := make(map[string]int, len(Resolutions))
	for _, res := range Resolutions {
		created, err := a.Run(res)
		if err != nil {
			a.Logger.Error("Aggregation pass %s failed: %v", res.Name, err)
			created = 0
		}
		results[res.Name] = created
	}
	return results
}

// -----------------------------------------------------------------------------

func (a *Aggregator) buildCandle(res Resolution, key models.MSeriesKey, ws time.Time) (models.MCandle, bool, error) {
	we := ws.Add(res.Window)

	if res.Source == models.TierRaw {
		points, err := a.DB.PricePointsRange(key.Symbol, key.Exchange, ws, we)
		if err != nil {
			return models.MCandle{}, false, err
		}
		if len(points) == 0 {
			return models.MCandle{}, false, nil
		}
		return candleFromTicks(key, ws, points), true, nil
	}

	sub, err := a.DB.CandlesRange(res.Source, key.Symbol, key.Exchange, ws, we)
	if err != nil {
		return models.MCandle{}, false, err
	}
	if len(sub) == 0 {
		return models.MCandle{}, false, nil
	}
	return candleFromCandles(key, ws, sub), true, nil
}

// -----------------------------------------------------------------------------

// candleFromTicks computes OHLC from raw ticks ordered by timestamp ascending.
func candleFromTicks(key models.MSeriesKey, ws time.Time, points []models.MPricePoint) models.MCandle {
	c := models.MCandle{
		Symbol:      key.Symbol,
		Exchange:    key.Exchange,
		WindowStart: ws,
		Open:        points[0].Price,
		Close:       points[len(points)-1].Price,
		High:        points[0].Price,
		Low:         points[0].Price,
		VolumeSum:   decimal.Zero,
	}

	for _, p := range points {
		if p.Price.GreaterThan(c.High) {
			c.High = p.Price
		}
		if p.Price.LessThan(c.Low) {
			c.Low = p.Price
		}
		c.VolumeSum = c.VolumeSum.Add(p.Volume)
	}
	return c
}

// -----------------------------------------------------------------------------

// candleFromCandles computes OHLC from sub-tier candles ordered by window
// start ascending: first open, last close, extreme high/low, summed volume.
func candleFromCandles(key models.MSeriesKey, ws time.Time, sub []models.MCandle) models.MCandle {
	c := models.MCandle{
		Symbol:      key.Symbol,
		Exchange:    key.Exchange,
		WindowStart: ws,
		Open:        sub[0].Open,
		Close:       sub[len(sub)-1].Close,
		High:        sub[0].High,
		Low:         sub[0].Low,
		VolumeSum:   decimal.Zero,
	}

	for _, s := range sub {
		if s.High.GreaterThan(c.High) {
			c.High = s.High
		}
		if s.Low.LessThan(c.Low) {
			c.Low = s.Low
		}
		c.VolumeSum = c.VolumeSum.Add(s.VolumeSum)
	}
	return c
}
