package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

const krakenTickerURL = "https://api.kraken.com/0/public/Ticker"

// KrakenSource pulls the public ticker snapshot from Kraken. Kraken still
// serves some pairs under legacy names ("XXBTZUSD"), so the adapter carries
// its own pair normalization on top of the shared quote split.
type KrakenSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	BaseURL string
}

// -----------------------------------------------------------------------------

type krakenTicker struct {
	Close  []string `json:"c"` // [price, lot volume]
	Volume []string `json:"v"` // [today, last 24h]
	High   []string `json:"h"`
	Low    []string `json:"l"`
	Open   string   `json:"o"`
}

type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

// Legacy asset codes still present in Kraken pair names.
var krakenAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// -----------------------------------------------------------------------------

func NewKrakenSource(cfg *models.MConfig, netMgr interfaces.INetworkManager) *KrakenSource {
	return &KrakenSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg.LogLevel, "KrakenSource"),
		BaseURL: krakenTickerURL,
	}
}

// -----------------------------------------------------------------------------

func (s *KrakenSource) Name() string {
	return "kraken"
}

// -----------------------------------------------------------------------------

// FetchTickers returns validated tickers for configured quote currencies.
// The 24h change is derived from the open price since Kraken does not report
// a percentage directly.
func (s *KrakenSource) FetchTickers() ([]models.MTicker, error) {
	body, err := s.Network.Get(s.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kraken ticker request: %w", err)
	}

	var resp krakenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kraken ticker payload: %w", err)
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken api error: %s", strings.Join(resp.Error, "; "))
	}

	now := time.Now().UTC()
	tickers := make([]models.MTicker, 0, len(resp.Result))

	for pair, r := range resp.Result {
		base, quote, ok := s.splitKrakenPair(pair)
		if !ok {
			continue
		}
		if len(r.Close) == 0 {
			continue
		}

		price, err := decimal.NewFromString(r.Close[0])
		if err != nil || price.IsZero() {
			continue
		}

		var volume decimal.Decimal
		if len(r.Volume) > 1 {
			// Lot volume in base units, converted to quote units like the
			// other venues report it.
			if v, err := decimal.NewFromString(r.Volume[1]); err == nil {
				volume = v.Mul(price)
			}
		}

		var high, low float64
		if len(r.High) > 1 {
			high, _ = strconv.ParseFloat(r.High[1], 64)
		}
		if len(r.Low) > 1 {
			low, _ = strconv.ParseFloat(r.Low[1], 64)
		}

		var change float64
		if open, err := strconv.ParseFloat(r.Open, 64); err == nil && open > 0 {
			last, _ := price.Float64()
			change = (last - open) / open * 100
		}

		tickers = append(tickers, models.MTicker{
			Symbol:        base,
			Exchange:      s.Name(),
			Pair:          pair,
			QuoteCurrency: quote,
			Price:         price,
			Volume24h:     volume.Round(2),
			High24h:       high,
			Low24h:        low,
			ChangePct24h:  change,
			Timestamp:     now,
		})
	}

	s.Logger.Debug("Fetched %d usable tickers from kraken (%d raw)", len(tickers), len(resp.Result))
	return tickers, nil
}

// -----------------------------------------------------------------------------

// splitKrakenPair handles both modern ("SOLUSD") and legacy ("XXBTZUSD")
// pair names. Legacy names prefix the quote with Z and pad short base codes
// with X.
func (s *KrakenSource) splitKrakenPair(pair string) (string, string, bool) {
	quotes := s.Config.Exchanges.QuoteCurrencies

	legacy := make([]string, 0, len(quotes)*2)
	for _, q := range quotes {
		legacy = append(legacy, "Z"+strings.ToUpper(q), strings.ToUpper(q))
	}

	base, quote, ok := SplitPair(pair, legacy)
	if !ok {
		return "", "", false
	}
	quote = strings.TrimPrefix(quote, "Z")

	if len(base) == 4 && strings.HasPrefix(base, "X") {
		base = strings.TrimPrefix(base, "X")
	}
	if alias, found := krakenAliases[base]; found {
		base = alias
	}
	return base, quote, true
}
