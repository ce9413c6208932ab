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

const binanceTickerURL = "https://api.binance.com/api/v3/ticker/24hr"

// BinanceSource pulls the full 24h ticker snapshot from Binance's public
// REST API in one request per cycle.
type BinanceSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	BaseURL string
}

// -----------------------------------------------------------------------------

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// -----------------------------------------------------------------------------

func NewBinanceSource(cfg *models.MConfig, netMgr interfaces.INetworkManager) *BinanceSource {
	return &BinanceSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg.LogLevel, "BinanceSource"),
		BaseURL: binanceTickerURL,
	}
}

// -----------------------------------------------------------------------------

func (s *BinanceSource) Name() string {
	return "binance"
}

// -----------------------------------------------------------------------------

// FetchTickers returns validated tickers for every pair quoted in one of the
// configured quote currencies. Rows that fail validation are dropped with a
// log, never propagated.
func (s *BinanceSource) FetchTickers() ([]models.MTicker, error) {
	body, err := s.Network.Get(s.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance ticker request: %w", err)
	}

	var raw []binanceTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance ticker payload: %w", err)
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
			ChangePct24h:  change,
			Timestamp:     now,
		})
	}

	s.Logger.Debug("Fetched %d usable tickers from binance (%d raw)", len(tickers), len(raw))
	return tickers, nil
}
