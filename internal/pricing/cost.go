package pricing

import "github.com/ongoingai/meter/internal/providers"

// Cost prices extracted usage against a rate entry. The result is always
// finite and >= 0.
//
// When the rate carries per-type prices and the usage carries per-type
// quantities, the per-type sum replaces the flat computation entirely; if no
// key intersects the two mappings, the flat computation applies as a
// fallback rather than billing zero.
func Cost(usage *providers.Usage, rate *Rate) float64 {
	if usage == nil || rate == nil {
		return 0
	}

	if cost, ok := costByType(usage, rate); ok {
		return clamp(cost)
	}

	divisor := rate.Unit.Divisor()
	inputUnits := usageValue(usage.InputUnits)
	outputUnits := usageValue(usage.OutputUnits)
	cachedUnits := usageValue(usage.CachedInputUnits)

	total := 0.0
	if flat, ok := rateValue(rate.Cost); ok {
		switch rate.Unit {
		case UnitPerImage, UnitPerRequest:
			multiplier := outputUnits
			if multiplier < 1 {
				multiplier = 1
			}
			total += flat * multiplier
		default:
			total += flat
		}
	}
	if inputRate, ok := rateValue(rate.Input); ok && inputUnits > 0 {
		total += (inputUnits / divisor) * inputRate
	}
	if outputRate, ok := rateValue(rate.Output); ok && outputUnits > 0 {
		total += (outputUnits / divisor) * outputRate
	}
	if cachedRate, ok := rateValue(rate.CachedInput); ok && cachedUnits > 0 {
		total += (cachedUnits / divisor) * cachedRate
	}

	return clamp(total)
}

func costByType(usage *providers.Usage, rate *Rate) (float64, bool) {
	if len(rate.PricesByType) == 0 || len(usage.UsageByType) == 0 {
		return 0, false
	}

	divisor := rate.Unit.Divisor()
	total := 0.0
	matched := false
	for key, quantity := range usage.UsageByType {
		price, ok := rate.PricesByType[key]
		if !ok {
			continue
		}
		q := usageValue(&quantity)
		if p, valid := rateValue(&price); valid && q > 0 {
			total += (q / divisor) * p
		}
		matched = true
	}
	if !matched {
		return 0, false
	}
	return total, true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
