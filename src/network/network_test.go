package network

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

func newTestManager(proxies []string, timeout, retries int) *NetworkManager {
	cfg := &models.MConfig{
		Name: "networktest",
		Network: models.MNetworkConfig{
			Proxies:        proxies,
			RequestTimeout: timeout,
			MaxRetries:     retries,
		},
	}
	return NewNetworkManager(cfg, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------

func TestGetReturnsBodyWithQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("query parameter lost: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	nm := newTestManager(nil, 5, 0)

	body, err := nm.Get(srv.URL, map[string]string{"vs_currency": "usd"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body = %s", body)
	}
}

// -----------------------------------------------------------------------------

func TestRotateProxyInstallsFreshClient(t *testing.T) {
	nm := newTestManager([]string{"127.0.0.1:8080", "127.0.0.1:8081"}, 5, 0)

	before := nm.httpClient()
	nm.rotateProxy()
	if nm.httpClient() == before {
		t.Fatal("expected a fresh client after rotation")
	}
}

// -----------------------------------------------------------------------------

// Every attempt is throttled, so each in-flight Get keeps swapping the shared
// client while the others are still using it. Run with -race.
func TestConcurrentGetsDuringProxyRotation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// Both pool entries point at the throttling server, which for plain
	// http also receives proxied requests for any upstream host.
	nm := newTestManager([]string{srv.URL, srv.URL}, 2, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := nm.Get("http://upstream.invalid/ticker", nil); err == nil {
				t.Error("expected error when every attempt is throttled")
			}
		}()
	}
	wg.Wait()
}
