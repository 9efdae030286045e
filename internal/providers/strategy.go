package providers

// Strategy recognizes and extracts usage for one provider's response shape.
//
// CanHandle must be a total, side-effect-free structural predicate: false for
// nil shapes and for shapes lacking the provider's signature usage field.
// Extract must return nil whenever CanHandle would return false for the same
// input, and must never return nil when a usage-bearing field is present:
// partial data yields a Usage with absent fields, not nil.
type Strategy interface {
	Provider() string
	CanHandle(path []string, shape map[string]any) bool
	Extract(path []string, shape map[string]any, args []any) *Usage
}

// builtinStrategies is the fixed dispatch order. More structurally specific
// strategies come before general ones that could falsely match the same
// shape: the wrapped Google variant strictly precedes the unwrapped one.
var builtinStrategies = []Strategy{
	openAIStrategy{},
	anthropicStrategy{},
	bedrockStrategy{},
	googleStrategy{wrapped: true},
	googleStrategy{},
	falStrategy{},
	bflStrategy{},
	elevenLabsStrategy{},
	vercelAIStrategy{},
}

// ExtractUsage dispatches the intercepted call's result to the first matching
// strategy. The provider hint is advisory: a hinted strategy is preferred,
// custom registrations over built-ins, but a hint whose strategy does not
// recognize the shape falls back to the full ordered scan. A nil return means
// no cost is attributable; it is not an error.
func ExtractUsage(path []string, result any, args []any, hint string) *Usage {
	shape := Shape(result)

	if hint != "" && hint != ProviderUnknown {
		if strategy, ok := customStrategy(hint); ok && strategy.CanHandle(path, shape) {
			return strategy.Extract(path, shape, args)
		}
		for _, strategy := range builtinStrategies {
			if strategy.Provider() == hint && strategy.CanHandle(path, shape) {
				return strategy.Extract(path, shape, args)
			}
		}
	}

	for _, strategy := range builtinStrategies {
		if strategy.CanHandle(path, shape) {
			return strategy.Extract(path, shape, args)
		}
	}
	return nil
}
