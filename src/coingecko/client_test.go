package coingecko

import (
	"strings"
	"testing"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

type fakeNetwork struct {
	responses map[string][]byte // url substring -> body
	calls     int
}

func (f *fakeNetwork) Get(url string, params map[string]string) ([]byte, error) {
	f.calls++
	for fragment, body := range f.responses {
		if strings.Contains(url, fragment) {
			return body, nil
		}
	}
	return []byte(`{}`), nil
}

// -----------------------------------------------------------------------------

func newTestClient(net *fakeNetwork) *Client {
	cfg := &models.MConfig{
		History: models.MHistoryConfig{
			BaseURL:        "https://example.test/api/v3",
			RateLimitDelay: 0,
		},
	}
	return NewClient(cfg, net, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------

func TestResolveIDCachesCoinList(t *testing.T) {
	net := &fakeNetwork{responses: map[string][]byte{
		"/coins/list": []byte(`[
			{"id":"bitcoin","symbol":"btc"},
			{"id":"batcat","symbol":"btc"},
			{"id":"ethereum","symbol":"eth"}
		]`),
	}}
	c := newTestClient(net)

	id, ok, err := c.ResolveID("BTC")
	if err != nil {
		t.Fatalf("ResolveID: %v", err)
	}
	if !ok || id != "bitcoin" {
		t.Fatalf("ResolveID(BTC) = (%s, %v), want (bitcoin, true); first listing wins", id, ok)
	}

	// Second lookup hits the cache, not the network.
	before := net.calls
	if _, _, err := c.ResolveID("eth"); err != nil {
		t.Fatalf("ResolveID(eth): %v", err)
	}
	if net.calls != before {
		t.Fatalf("cache miss: calls went %d -> %d", before, net.calls)
	}

	_, ok, err = c.ResolveID("NOTACOIN")
	if err != nil {
		t.Fatalf("ResolveID(NOTACOIN): %v", err)
	}
	if ok {
		t.Fatal("unknown symbol must resolve to ok=false")
	}
}

// -----------------------------------------------------------------------------

func TestFetchMarketChartJoinsPricesAndVolumes(t *testing.T) {
	net := &fakeNetwork{responses: map[string][]byte{
		"/coins/bitcoin/market_chart": []byte(`{
			"prices":        [[1767225600000, 50000.5], [1767312000000, 51000.25]],
			"total_volumes": [[1767225600000, 1000000], [1767312000000, 2000000]]
		}`),
	}}
	c := newTestClient(net)

	points, err := c.FetchMarketChart("bitcoin", 2)
	if err != nil {
		t.Fatalf("FetchMarketChart: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}

	first := points[0]
	if !first.Timestamp.Equal(time.Unix(1767225600, 0).UTC()) {
		t.Fatalf("timestamp = %s", first.Timestamp)
	}
	if want, _ := decimal.NewFromString("50000.5"); !first.Price.Equal(want) {
		t.Fatalf("price = %s, want 50000.5", first.Price)
	}
	if !first.Volume.Equal(decimal.NewFromInt(1000000)) {
		t.Fatalf("volume = %s, want 1000000", first.Volume)
	}
}

// -----------------------------------------------------------------------------

func TestFetchMetadata(t *testing.T) {
	net := &fakeNetwork{responses: map[string][]byte{
		"/coins/markets": []byte(`[
			{"id":"bitcoin","name":"Bitcoin","market_cap":1000000000000,"circulating_supply":19000000}
		]`),
	}}
	c := newTestClient(net)

	meta, err := c.FetchMetadata("btc", "bitcoin")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Symbol != "BTC" || meta.GeckoID != "bitcoin" || meta.Name != "Bitcoin" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.MarketCap != 1e12 || meta.CirculatingSupply != 19e6 {
		t.Fatalf("unexpected market figures: %+v", meta)
	}
}
