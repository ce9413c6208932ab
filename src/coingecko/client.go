package coingecko

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Client is the historical data and catalog provider. All calls go through a
// single client-side throttle so the free-tier rate limit is honored no
// matter how many callers share the instance.
type Client struct {
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	BaseURL string
	Delay   time.Duration

	mu          sync.Mutex
	lastRequest time.Time

	idMu  sync.RWMutex
	idMap map[string]string // upper-cased symbol -> provider id
}

// -----------------------------------------------------------------------------

func NewClient(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *Client {
	return &Client{
		Network: netMgr,
		Logger:  log,
		BaseURL: strings.TrimRight(cfg.History.BaseURL, "/"),
		Delay:   time.Duration(cfg.History.RateLimitDelay * float64(time.Second)),
	}
}

// -----------------------------------------------------------------------------

// throttledGet spaces provider requests at least Delay apart.
func (c *Client) throttledGet(path string, params map[string]string) ([]byte, error) {
	c.mu.Lock()
	if wait := c.Delay - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	return c.Network.Get(c.BaseURL+path, params)
}

// -----------------------------------------------------------------------------

// ResolveID maps an exchange symbol to the provider's coin id. The full coin
// list is fetched once and cached; ok is false for symbols the provider does
// not know. When several coins share a symbol the first listed wins, which
// for major assets is the canonical one.
func (c *Client) ResolveID(symbol string) (string, bool, error) {
	symbol = strings.ToUpper(symbol)

	c.idMu.RLock()
	cached := c.idMap
	c.idMu.RUnlock()

	if cached == nil {
		if err := c.loadCoinList(); err != nil {
			return "", false, err
		}
		c.idMu.RLock()
		cached = c.idMap
		c.idMu.RUnlock()
	}

	id, ok := cached[symbol]
	return id, ok, nil
}

// -----------------------------------------------------------------------------

func (c *Client) loadCoinList() error {
	body, err := c.throttledGet("/coins/list", nil)
	if err != nil {
		return fmt.Errorf("coin list request: %w", err)
	}

	var list []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("coin list payload: %w", err)
	}

	idMap := make(map[string]string, len(list))
	for _, entry := range list {
		key := strings.ToUpper(entry.Symbol)
		if _, taken := idMap[key]; !taken {
			idMap[key] = entry.ID
		}
	}

	c.idMu.Lock()
	c.idMap = idMap
	c.idMu.Unlock()

	c.Logger.Info("Loaded provider coin list: %d symbols", len(idMap))
	return nil
}

// -----------------------------------------------------------------------------

// FetchMarketChart returns daysBack days of price and volume history for a
// provider coin id, oldest first. Prices and volumes arrive as parallel
// [[millis, value]] arrays and are joined on their shared index.
func (c *Client) FetchMarketChart(id string, daysBack int) ([]models.MHistoricalPoint, error) {
	body, err := c.throttledGet("/coins/"+id+"/market_chart", map[string]string{
		"vs_currency": "usd",
		"days":        strconv.Itoa(daysBack),
	})
	if err != nil {
		return nil, fmt.Errorf("market chart request for %s: %w", id, err)
	}

	var chart struct {
		Prices       [][]float64 `json:"prices"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("market chart payload for %s: %w", id, err)
	}

	points := make([]models.MHistoricalPoint, 0, len(chart.Prices))
	for i, pair := range chart.Prices {
		if len(pair) < 2 {
			continue
		}

		pt := models.MHistoricalPoint{
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
			Price:     decimal.NewFromFloat(pair[1]).Round(8),
		}
		if i < len(chart.TotalVolumes) && len(chart.TotalVolumes[i]) >= 2 {
			pt.Volume = decimal.NewFromFloat(chart.TotalVolumes[i][1]).Round(2)
		}
		points = append(points, pt)
	}

	return points, nil
}

// -----------------------------------------------------------------------------

// FetchMetadata returns the catalog row (name, market cap, supply) for one
// coin via the markets endpoint.
func (c *Client) FetchMetadata(symbol, id string) (models.MCoinMetadata, error) {
	body, err := c.throttledGet("/coins/markets", map[string]string{
		"vs_currency": "usd",
		"ids":         id,
	})
	if err != nil {
		return models.MCoinMetadata{}, fmt.Errorf("metadata request for %s: %w", id, err)
	}

	var rows []struct {
		ID                string  `json:"id"`
		Name              string  `json:"name"`
		MarketCap         float64 `json:"market_cap"`
		CirculatingSupply float64 `json:"circulating_supply"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return models.MCoinMetadata{}, fmt.Errorf("metadata payload for %s: %w", id, err)
	}
	if len(rows) == 0 {
		return models.MCoinMetadata{}, fmt.Errorf("no metadata returned for %s", id)
	}

	return models.MCoinMetadata{
		Symbol:            strings.ToUpper(symbol),
		GeckoID:           rows[0].ID,
		Name:              rows[0].Name,
		MarketCap:         rows[0].MarketCap,
		CirculatingSupply: rows[0].CirculatingSupply,
	}, nil
}
