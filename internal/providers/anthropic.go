package providers

// anthropicStrategy handles the input_tokens/output_tokens usage shape.
// Responses that also carry prompt_tokens belong to the OpenAI-compatible
// shape and are explicitly excluded so the two strategies never collide.
type anthropicStrategy struct{}

func (anthropicStrategy) Provider() string {
	return ProviderAnthropic
}

func (anthropicStrategy) CanHandle(_ []string, shape map[string]any) bool {
	usage := mapField(shape, "usage")
	if usage == nil {
		return false
	}
	if _, taken := numberField(usage, "prompt_tokens"); taken {
		return false
	}
	_, hasInput := numberField(usage, "input_tokens")
	_, hasOutput := numberField(usage, "output_tokens")
	return hasInput || hasOutput
}

func (s anthropicStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}
	usage := mapField(shape, "usage")

	model := stringField(shape, "model")
	if model == "" {
		model = argModel(args)
	}
	if model == "" {
		model = "unknown"
	}

	out := &Usage{
		Provider:         ProviderAnthropic,
		Model:            model,
		InputUnits:       optionalNumber(usage, "input_tokens"),
		OutputUnits:      optionalNumber(usage, "output_tokens"),
		CachedInputUnits: optionalNumber(usage, "cache_read_input_tokens"),
	}
	// Cache creation tokens are recorded for diagnostics but not priced as a
	// distinct cost component.
	if created, ok := numberField(usage, "cache_creation_input_tokens"); ok {
		out.Metadata = map[string]any{"cache_creation_input_tokens": created}
	}
	return out
}
