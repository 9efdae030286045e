// Package pricing holds the versioned rate table and turns extracted usage
// quantities into monetary cost. A bundled table ships with the library and
// is always available; a best-effort remote refresh can replace it at
// runtime.
package pricing

import (
	"math"
	"time"
)

// Unit is the billing unit of a rate entry.
type Unit string

const (
	UnitPerMillionTokens  Unit = "1m_tokens"
	UnitPerThousandTokens Unit = "1k_tokens"
	UnitPerThousandChars  Unit = "1k_characters"
	UnitPerRequest        Unit = "request"
	UnitPerMegapixel      Unit = "megapixel"
	UnitPerSecond         Unit = "second"
	UnitPerMinute         Unit = "minute"
	UnitPerImage          Unit = "image"
)

// Divisor returns the usage divisor for the unit.
func (u Unit) Divisor() float64 {
	switch u {
	case UnitPerMillionTokens:
		return 1_000_000
	case UnitPerThousandTokens, UnitPerThousandChars:
		return 1_000
	default:
		return 1
	}
}

// Rate is one row of the rate table: currency-per-unit values for a model.
// Nil means the component is not priced. Negative or non-finite values are
// treated as absent during computation, never coerced to zero.
type Rate struct {
	Unit         Unit               `json:"unit"`
	Input        *float64           `json:"input,omitempty"`
	Output       *float64           `json:"output,omitempty"`
	CachedInput  *float64           `json:"cached_input,omitempty"`
	CachedOutput *float64           `json:"cached_output,omitempty"`
	CacheWrite   *float64           `json:"cache_write,omitempty"`
	CacheRead    *float64           `json:"cache_read,omitempty"`
	Cost         *float64           `json:"cost,omitempty"`
	PricesByType map[string]float64 `json:"prices_by_type,omitempty"`
}

// Table is a full rate table: provider -> model -> rate.
type Table struct {
	Version   string                     `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Providers map[string]map[string]Rate `json:"providers"`
}

// rateValue dereferences a rate component, discarding invalid values: nil,
// negative, NaN, and infinities all read as "absent".
func rateValue(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// usageValue normalizes a usage quantity: nil, negative, and non-finite
// values all read as zero.
func usageValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	v := *p
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
