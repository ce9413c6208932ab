package network

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"coin-observer/src/helpers"
	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

type NetworkManager struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Proxies *helpers.ProxyManager

	// client is swapped on proxy rotation while concurrent Gets read it,
	// so every access goes through the mutex.
	clientMu sync.RWMutex
	client   *http.Client
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg *models.MConfig, log *logger.Logger) *NetworkManager {
	nm := &NetworkManager{
		Config:  cfg,
		Logger:  log,
		Proxies: helpers.NewProxyManager(cfg.Network.Proxies, log.Named("ProxyManager")),
	}
	nm.client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) createClient() *http.Client {
	transport := &http.Transport{}

	if proxyStr := nm.Proxies.CurrentProxy(); proxyStr != "" {
		if proxyURL, err := url.Parse(proxyStr); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(nm.Config.Network.RequestTimeout) * time.Second,
	}
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) rotateProxy() {
	if !nm.Proxies.HasProxies() {
		return
	}

	nm.Proxies.RotateProxy()
	fresh := nm.createClient()

	nm.clientMu.Lock()
	nm.client = fresh
	nm.clientMu.Unlock()
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) httpClient() *http.Client {
	nm.clientMu.RLock()
	defer nm.clientMu.RUnlock()
	return nm.client
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and proxy rotation.
func (nm *NetworkManager) Get(urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	finalUrl := reqUrl.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i*i) * time.Second) // Exponential backoff
			nm.rotateProxy()
		}

		req, err := http.NewRequest("GET", finalUrl, nil)
		if err != nil {
			return nil, err
		}

		if nm.Config.Network.UserAgent != "" {
			req.Header.Set("User-Agent", nm.Config.Network.UserAgent)
		} else {
			req.Header.Set("User-Agent", nm.Proxies.RandomUserAgent())
		}

		resp, err := nm.httpClient().Do(req)
		if err != nil {
			lastErr = err
			nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode == 403 {
			resp.Body.Close()
			lastErr = fmt.Errorf("blocked (status %d)", resp.StatusCode)
			nm.Logger.Info("Request blocked (%d). Rotating proxy.", resp.StatusCode)
			continue
		}

		if resp.StatusCode != 200 {
			resp.Body.Close()
			lastErr = fmt.Errorf("bad status: %d", resp.StatusCode)
			nm.Logger.Info("Bad status %d for %s", resp.StatusCode, reqUrl.Host)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %v", lastErr)
}
