package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

const mexcTickerURL = "https://api.mexc.com/api/v3/ticker/24hr"

// MexcSource pulls the full 24h ticker snapshot from MEXC. The endpoint
// mirrors Binance's shape but is served by a different venue, so it gets its
// own adapter and its own failure domain.
type MexcSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	BaseURL string
}

// -----------------------------------------------------------------------------

type mexcTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// -----------------------------------------------------------------------------

func NewMexcSource(cfg *models.MConfig, netMgr interfaces.INetworkManager) *MexcSource {
	return &MexcSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg.LogLevel, "MexcSource"),
		BaseURL: mexcTickerURL,
	}
}

// -----------------------------------------------------------------------------

func (s *MexcSource) Name() string {
	return "mexc"
}

// -----------------------------------------------------------------------------

// FetchTickers returns validated tickers for configured quote currencies.
// MEXC reports the 24h change as a fraction, not a percentage.
func (s *MexcSource) FetchTickers() ([]models.MTicker, error) {
	body, err := s.Network.Get(s.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("mexc ticker request: %w", err)
	}

	var raw []mexcTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("mexc ticker payload: %w", err)
	}

	now := time.Now().UTC()
	tickers := make([]models.MTicker, 0, len(raw))

	for _, r := range raw {
		base, quote, ok := SplitPair(r.Symbol, s.Config.Exchanges.QuoteCurrencies)
		if !ok {
			continue
		}

		price, err := decimal.NewFromString(r.LastPrice)
		if err != nil || price.IsZero() {
			continue
		}
		volume, err := decimal.NewFromString(r.QuoteVolume)
		if err != nil {
			volume = decimal.Zero
		}

		high, _ := strconv.ParseFloat(r.HighPrice, 64)
		low, _ := strconv.ParseFloat(r.LowPrice, 64)
		change, _ := strconv.ParseFloat(r.PriceChangePercent, 64)

		tickers = append(tickers, models.MTicker{
			Symbol:        base,
			Exchange:      s.Name(),
			Pair:          r.Symbol,
			QuoteCurrency: quote,
			Price:         price,
			Volume24h:     volume,
			High24h:       high,
			Low24h:        low,
			ChangePct24h:  change * 100,
			Timestamp:     now,
		})
	}

	s.Logger.Debug("Fetched %d usable tickers from mexc (%d raw)", len(tickers), len(raw))
	return tickers, nil
}
