package exchange

import "strings"

// -----------------------------------------------------------------------------

// SplitPair resolves a venue pair like "BTCUSDT" against the configured quote
// currencies and returns the base symbol and matched quote. Longest quote
// wins so "USDT" is preferred over "USD" when both are configured. ok is
// false for pairs quoted in anything else; those are dropped at the boundary.
func SplitPair(pair string, quotes []string) (base, quote string, ok bool) {
	pair = strings.ToUpper(pair)

	for _, q := range quotes {
		q = strings.ToUpper(q)
		if !strings.HasSuffix(pair, q) {
			continue
		}
		b := strings.TrimSuffix(pair, q)
		if b == "" {
			continue
		}
		if len(q) > len(quote) {
			base, quote = b, q
			ok = true
		}
	}
	return base, quote, ok
}
