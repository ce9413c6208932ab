package exchange

import (
	"errors"
	"testing"

	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

func testConfig() *models.MConfig {
	return &models.MConfig{
		LogLevel: "ERROR",
		Exchanges: models.MExchangeConfig{
			Enabled:         []string{"binance", "kraken", "mexc"},
			QuoteCurrencies: []string{"USDT", "USD"},
		},
	}
}

// -----------------------------------------------------------------------------

type fakeNetwork struct {
	body []byte
	err  error
}

func (f *fakeNetwork) Get(url string, params map[string]string) ([]byte, error) {
	return f.body, f.err
}

// -----------------------------------------------------------------------------

func TestSplitPair(t *testing.T) {
	quotes := []string{"USDT", "USD"}

	cases := []struct {
		pair      string
		wantBase  string
		wantQuote string
		wantOK    bool
	}{
		{"BTCUSDT", "BTC", "USDT", true},
		{"ETHUSD", "ETH", "USD", true},
		{"btcusdt", "BTC", "USDT", true},
		{"BTCEUR", "", "", false},
		{"USDT", "", "", false}, // no base left
	}

	for _, c := range cases {
		base, quote, ok := SplitPair(c.pair, quotes)
		if ok != c.wantOK || base != c.wantBase || quote != c.wantQuote {
			t.Fatalf("SplitPair(%s) = (%s, %s, %v), want (%s, %s, %v)",
				c.pair, base, quote, ok, c.wantBase, c.wantQuote, c.wantOK)
		}
	}
}

// -----------------------------------------------------------------------------

func TestBinanceFetchTickers(t *testing.T) {
	payload := `[
		{"symbol":"BTCUSDT","lastPrice":"50000.50","quoteVolume":"1000000.00","highPrice":"51000","lowPrice":"49000","priceChangePercent":"2.5"},
		{"symbol":"ETHBTC","lastPrice":"0.05","quoteVolume":"100","highPrice":"0.06","lowPrice":"0.04","priceChangePercent":"1.0"},
		{"symbol":"XRPUSDT","lastPrice":"0","quoteVolume":"5","highPrice":"1","lowPrice":"1","priceChangePercent":"0"}
	]`

	src := NewBinanceSource(testConfig(), &fakeNetwork{body: []byte(payload)})

	tickers, err := src.FetchTickers()
	if err != nil {
		t.Fatalf("FetchTickers: %v", err)
	}

	// ETHBTC has a foreign quote, XRPUSDT a zero price; only BTCUSDT survives.
	if len(tickers) != 1 {
		t.Fatalf("got %d tickers, want 1", len(tickers))
	}

	tk := tickers[0]
	if tk.Symbol != "BTC" || tk.Exchange != "binance" || tk.QuoteCurrency != "USDT" {
		t.Fatalf("unexpected ticker identity: %+v", tk)
	}
	if want, _ := decimal.NewFromString("50000.50"); !tk.Price.Equal(want) {
		t.Fatalf("price = %s, want 50000.50", tk.Price)
	}
	if tk.ChangePct24h != 2.5 {
		t.Fatalf("change = %v, want 2.5", tk.ChangePct24h)
	}
}

// -----------------------------------------------------------------------------

func TestKrakenFetchTickers(t *testing.T) {
	payload := `{
		"error": [],
		"result": {
			"XXBTZUSD": {"c":["50000.0","0.1"],"v":["10","20"],"h":["50500","51000"],"l":["49000","48500"],"o":"48000.0"},
			"SOLUSD":   {"c":["150.0","1"],"v":["100","200"],"h":["155","160"],"l":["145","140"],"o":"150.0"},
			"XETHZEUR": {"c":["3000.0","1"],"v":["1","2"],"h":["3100","3200"],"l":["2900","2800"],"o":"3000.0"}
		}
	}`

	src := NewKrakenSource(testConfig(), &fakeNetwork{body: []byte(payload)})

	tickers, err := src.FetchTickers()
	if err != nil {
		t.Fatalf("FetchTickers: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("got %d tickers, want 2 (EUR pair dropped)", len(tickers))
	}

	bySymbol := make(map[string]models.MTicker)
	for _, tk := range tickers {
		bySymbol[tk.Symbol] = tk
	}

	btc, ok := bySymbol["BTC"]
	if !ok {
		t.Fatalf("legacy XXBTZUSD pair not normalized to BTC: %v", bySymbol)
	}
	if btc.QuoteCurrency != "USD" {
		t.Fatalf("BTC quote = %s, want USD", btc.QuoteCurrency)
	}
	// (50000-48000)/48000*100
	if btc.ChangePct24h < 4.16 || btc.ChangePct24h > 4.17 {
		t.Fatalf("BTC change = %v, want ~4.1667", btc.ChangePct24h)
	}
	// 24h lot volume 20 * price 50000
	if !btc.Volume24h.Equal(decimal.NewFromInt(1000000)) {
		t.Fatalf("BTC volume = %s, want 1000000", btc.Volume24h)
	}

	if _, ok := bySymbol["SOL"]; !ok {
		t.Fatalf("modern SOLUSD pair missing: %v", bySymbol)
	}
}

// -----------------------------------------------------------------------------

func TestKrakenAPIError(t *testing.T) {
	payload := `{"error":["EService:Unavailable"],"result":{}}`
	src := NewKrakenSource(testConfig(), &fakeNetwork{body: []byte(payload)})

	if _, err := src.FetchTickers(); err == nil {
		t.Fatal("expected error for kraken api error payload")
	}
}

// -----------------------------------------------------------------------------

func TestManagerFetchAllToleratesVenueFailure(t *testing.T) {
	cfg := testConfig()
	log := logger.NewLogger("ERROR", "test")

	good := NewBinanceSource(cfg, &fakeNetwork{body: []byte(
		`[{"symbol":"BTCUSDT","lastPrice":"50000","quoteVolume":"1","highPrice":"1","lowPrice":"1","priceChangePercent":"0"}]`,
	)})
	bad := NewKrakenSource(cfg, &fakeNetwork{err: errors.New("connection refused")})

	m := NewManager(nil, log)
	if err := m.AddSource(good); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := m.AddSource(bad); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	tickers := m.FetchAll()
	if len(tickers) != 1 {
		t.Fatalf("got %d tickers, want 1 (failed venue contributes nothing)", len(tickers))
	}
	if tickers[0].Exchange != "binance" {
		t.Fatalf("ticker from %s, want binance", tickers[0].Exchange)
	}
}

// -----------------------------------------------------------------------------

func TestFromConfigRejectsUnknownVenue(t *testing.T) {
	cfg := testConfig()
	cfg.Exchanges.Enabled = []string{"binance", "bitfinex"}

	if _, err := FromConfig(cfg, &fakeNetwork{}, logger.NewLogger("ERROR", "test")); err == nil {
		t.Fatal("expected error for unknown venue")
	}
}
