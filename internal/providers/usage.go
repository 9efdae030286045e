package providers

// Usage is the normalized result of extracting billable quantities from one
// intercepted call or stream chunk. Quantities are provider-native units:
// tokens, characters, images, or seconds. Nil pointer fields mean "not
// reported", which is distinct from an explicit zero.
//
// A Usage is constructed fresh by a strategy and never mutated afterwards;
// streaming accumulation replaces the previous value wholesale.
type Usage struct {
	Provider string
	Model    string

	InputUnits       *float64
	OutputUnits      *float64
	CachedInputUnits *float64

	// UsageByType carries multi-modal quantities keyed by an open string,
	// e.g. "output_images_4k", when a flat input/output pair cannot express
	// the bill.
	UsageByType map[string]float64

	// RawCost is a cost the provider itself reported, when available.
	RawCost *float64

	// Metadata holds diagnostic fields such as the original model id or a
	// request id. Never used for pricing.
	Metadata map[string]any
}

// Float returns a pointer to v, for literal Usage construction.
func Float(v float64) *float64 {
	return &v
}

// Value returns *p, or 0 when p is nil.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
