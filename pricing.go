package meter

import (
	"context"
	"time"

	"github.com/ongoingai/meter/internal/pricing"
	"github.com/ongoingai/meter/internal/providers"
)

// SetPricingSources overrides the URLs the pricing table refreshes from.
// Both must be HTTPS URLs on an allowed host; the fallback may be empty.
func SetPricingSources(primary, fallback string) error {
	return pricing.Default().SetSources(primary, fallback)
}

// SetOffline disables background pricing refresh. The bundled table, or the
// last successfully fetched one, keeps serving lookups.
func SetOffline(offline bool) {
	pricing.Default().SetOffline(offline)
}

// SetModelAlias maps an alias to a canonical provider and model so lookups
// for the alias resolve to that model's rates.
func SetModelAlias(alias, provider, model string) error {
	return pricing.SetAlias(alias, provider, model)
}

// ClearModelAliases removes all registered model aliases.
func ClearModelAliases() {
	pricing.ClearAliases()
}

// SetRefreshInterval changes how long a fetched pricing table is considered
// fresh before a background refresh is scheduled.
func SetRefreshInterval(interval time.Duration) error {
	return pricing.Default().SetRefreshInterval(interval)
}

// SetFetchTimeout changes the per-source timeout for pricing table fetches.
func SetFetchTimeout(timeout time.Duration) error {
	return pricing.Default().SetFetchTimeout(timeout)
}

// RefreshPricing forces a pricing table fetch now, blocking until it
// completes or ctx expires. Fetch failures are logged and the current table
// stays in effect. Concurrent callers share one in-flight fetch.
func RefreshPricing(ctx context.Context) {
	pricing.Default().Refresh(ctx)
}

// EstimateCost prices the given usage against the current table without
// any client call. Returns 0 when no rate entry exists for the model.
func EstimateCost(usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	table := pricing.Default().Current()
	rate := pricing.Lookup(usage.Provider, usage.Model, table)
	if rate == nil {
		return 0
	}
	return pricing.Cost(usage, rate)
}

// RegisterProvider installs a custom provider: its detection, extraction,
// and factory methods take precedence over the built-in strategies of the
// same name.
func RegisterProvider(custom CustomProvider) error {
	return providers.Register(custom)
}
