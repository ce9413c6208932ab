package exchange

import (
	"fmt"
	"sync"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

// Manager fans one fetch cycle out to every enabled venue concurrently.
// A failing venue contributes zero tickers to the cycle; the others are
// unaffected.
type Manager struct {
	Sources map[string]interfaces.ITickSource
	Logger  *logger.Logger
	mu      sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewManager(sources []interfaces.ITickSource, log *logger.Logger) *Manager {
	m := &Manager{
		Sources: make(map[string]interfaces.ITickSource),
		Logger:  log,
	}
	for _, s := range sources {
		m.Sources[s.Name()] = s
	}
	return m
}

// -----------------------------------------------------------------------------

// FromConfig builds the enabled adapters. Unknown names in the config are an
// error so typos do not silently shrink the venue set.
func FromConfig(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) (*Manager, error) {
	sources := make([]interfaces.ITickSource, 0, len(cfg.Exchanges.Enabled))

	for _, name := range cfg.Exchanges.Enabled {
		switch name {
		case "binance":
			sources = append(sources, NewBinanceSource(cfg, netMgr))
		case "kraken":
			sources = append(sources, NewKrakenSource(cfg, netMgr))
		case "mexc":
			sources = append(sources, NewMexcSource(cfg, netMgr))
		default:
			return nil, fmt.Errorf("unknown exchange '%s'", name)
		}
	}

	return NewManager(sources, log), nil
}

// -----------------------------------------------------------------------------

// AddSource registers an additional venue.
func (m *Manager) AddSource(source interfaces.ITickSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}
	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// SourceNames returns the registered venue names.
func (m *Manager) SourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	return names
}

// -----------------------------------------------------------------------------

// FetchAll queries every venue concurrently and merges the results into one
// batch. Venue failures are logged and swallowed; an empty batch is a valid
// outcome when everything is down.
func (m *Manager) FetchAll() []models.MTicker {
	m.mu.RLock()
	sources := make([]interfaces.ITickSource, 0, len(m.Sources))
	for _, s := range m.Sources {
		sources = append(sources, s)
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		tickers []models.MTicker
	)

	for _, src := range sources {
		wg.Add(1)
		go func(s interfaces.ITickSource) {
			defer wg.Done()

			batch, err := s.FetchTickers()
			if err != nil {
				m.Logger.Error("Venue %s failed this cycle: %v", s.Name(), err)
				return
			}

			mu.Lock()
			tickers = append(tickers, batch...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	m.Logger.Debug("Fetched %d tickers from %d venues", len(tickers), len(sources))
	return tickers
}
