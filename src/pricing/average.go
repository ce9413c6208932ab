package pricing

import (
	"sort"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Service turns a batch of per-venue tickers into stored raw rows and updated
// coin snapshots. Prices are rounded to 8 decimal places and volumes to 2
// before persisting.
type Service struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewService(db interfaces.IDatabase, log *logger.Logger) *Service {
	return &Service{
		DB:     db,
		Logger: log,
		Now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// ComputeAverages groups tickers by symbol and computes the cross-exchange
// average for each. The average is volume weighted; when the batch carries no
// volume at all it degrades to a simple mean so a price still comes out.
func ComputeAverages(tickers []models.MTicker, now time.Time) map[string]models.MAveragePrice {
	grouped := make(map[string][]models.MTicker)
	for _, t := range tickers {
		if t.Price.IsZero() {
			continue
		}
		grouped[t.Symbol] = append(grouped[t.Symbol], t)
	}

	averages := make(map[string]models.MAveragePrice, len(grouped))
	for symbol, group := range grouped {
		averages[symbol] = averageOf(symbol, group, now)
	}
	return averages
}

// -----------------------------------------------------------------------------

func averageOf(symbol string, group []models.MTicker, now time.Time) models.MAveragePrice {
	var (
		weighted    decimal.Decimal
		totalVolume decimal.Decimal
		simpleSum   decimal.Decimal
	)

	avg := models.MAveragePrice{
		Symbol:        symbol,
		High24h:       group[0].High24h,
		Low24h:        group[0].Low24h,
		ExchangeCount: len(group),
		Timestamp:     now,
	}

	var changeSum float64
	for _, t := range group {
		weighted = weighted.Add(t.Price.Mul(t.Volume24h))
		totalVolume = totalVolume.Add(t.Volume24h)
		simpleSum = simpleSum.Add(t.Price)
		changeSum += t.ChangePct24h

		if t.High24h > avg.High24h {
			avg.High24h = t.High24h
		}
		if t.Low24h > 0 && (avg.Low24h == 0 || t.Low24h < avg.Low24h) {
			avg.Low24h = t.Low24h
		}
	}

	if totalVolume.IsPositive() {
		avg.Price = weighted.Div(totalVolume).Round(8)
	} else {
		avg.Price = simpleSum.Div(decimal.NewFromInt(int64(len(group)))).Round(8)
	}
	avg.Volume24h = totalVolume.Round(2)
	avg.ChangePct24h = changeSum / float64(len(group))

	return avg
}

// -----------------------------------------------------------------------------

// ProcessTickers runs one full price-update cycle over a fetched batch:
// per-venue ticks and the cross-exchange average go into the raw tier, then
// the coins table is refreshed and re-ranked. Returns the work counters and
// the averages for broadcasting.
func (s *Service) ProcessTickers(tickers []models.MTicker) (models.MUpdateResult, map[string]models.MAveragePrice, error) {
	result := models.MUpdateResult{}
	now := s.Now().UTC().Truncate(time.Second)

	averages := ComputeAverages(tickers, now)
	if len(averages) == 0 {
		s.Logger.Warning("Price update cycle received no usable tickers")
		return result, averages, nil
	}

	points := make([]models.MPricePoint, 0, len(tickers)+len(averages))
	for _, t := range tickers {
		if t.Price.IsZero() {
			continue
		}
		points = append(points, models.MPricePoint{
			Symbol:    t.Symbol,
			Exchange:  t.Exchange,
			Price:     t.Price.Round(8),
			Volume:    t.Volume24h.Round(2),
			Timestamp: now,
		})
	}
	for _, avg := range averages {
		points = append(points, models.MPricePoint{
			Symbol:    avg.Symbol,
			Exchange:  models.ExchangeAverage,
			Price:     avg.Price,
			Volume:    avg.Volume24h,
			Timestamp: now,
		})
	}

	stored, err := s.DB.SavePricePoints(points)
	if err != nil {
		return result, averages, err
	}
	result.RawStored = stored

	coins := make([]models.MCoin, 0, len(averages))
	for _, avg := range averages {
		coins = append(coins, s.coinFromAverage(avg, now))
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Symbol < coins[j].Symbol })

	updated, err := s.DB.UpsertCoins(coins)
	if err != nil {
		return result, averages, err
	}
	result.CoinsUpdated = updated

	changed, err := s.DB.RecomputeRanks()
	if err != nil {
		return result, averages, err
	}
	result.RanksChanged = changed

	s.Logger.Info("Price update cycle: %d raw rows, %d coins updated, %d rank changes",
		result.RawStored, result.CoinsUpdated, result.RanksChanged)
	return result, averages, nil
}

// -----------------------------------------------------------------------------

// coinFromAverage builds the coin snapshot for one symbol, deriving the price
// change percentages from the stored average history. A missing historical
// baseline leaves the corresponding change at zero.
func (s *Service) coinFromAverage(avg models.MAveragePrice, now time.Time) models.MCoin {
	price, _ := avg.Price.Float64()
	volume, _ := avg.Volume24h.Float64()

	coin := models.MCoin{
		Symbol:        avg.Symbol,
		PriceUSD:      price,
		High24h:       avg.High24h,
		Low24h:        avg.Low24h,
		Change24h:     avg.ChangePct24h,
		Volume24h:     volume,
		ExchangeCount: avg.ExchangeCount,
		LastUpdated:   now,
	}

	coin.Change1h = s.changeSince(avg.Symbol, avg.Price, now.Add(-time.Hour))
	coin.Change7d = s.changeSince(avg.Symbol, avg.Price, now.AddDate(0, 0, -7))
	coin.Change30d = s.changeSince(avg.Symbol, avg.Price, now.AddDate(0, 0, -30))

	return coin
}

// -----------------------------------------------------------------------------

// changeSince computes the percentage move from the oldest stored average row
// at or after since. Returns zero when no baseline exists yet.
func (s *Service) changeSince(symbol string, current decimal.Decimal, since time.Time) float64 {
	base, ok, err := s.DB.EarliestAveragePriceSince(symbol, since)
	if err != nil {
		s.Logger.Warning("Cannot load price baseline for %s: %v", symbol, err)
		return 0
	}
	if !ok || base.Price.IsZero() {
		return 0
	}

	change := current.Sub(base.Price).Div(base.Price).Mul(decimal.NewFromInt(100))
	f, _ := change.Round(4).Float64()
	return f
}
