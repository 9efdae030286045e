package providers

// openAIStrategy handles the snake_case prompt/completion token shape used by
// the OpenAI API and its many compatible imitators.
type openAIStrategy struct{}

func (openAIStrategy) Provider() string {
	return ProviderOpenAI
}

func (openAIStrategy) CanHandle(_ []string, shape map[string]any) bool {
	usage := mapField(shape, "usage")
	if usage == nil {
		return false
	}
	_, hasPrompt := numberField(usage, "prompt_tokens")
	_, hasCompletion := numberField(usage, "completion_tokens")
	return hasPrompt || hasCompletion
}

func (s openAIStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
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
		Provider:    ProviderOpenAI,
		Model:       model,
		InputUnits:  optionalNumber(usage, "prompt_tokens"),
		OutputUnits: optionalNumber(usage, "completion_tokens"),
	}
	if details := mapField(usage, "prompt_tokens_details"); details != nil {
		out.CachedInputUnits = optionalNumber(details, "cached_tokens")
	}
	if id := stringField(shape, "id"); id != "" {
		out.Metadata = map[string]any{"request_id": id}
	}
	return out
}
