package providers

import "strings"

// vercelAIStrategy handles aggregator-SDK results with camelCase
// promptTokens/completionTokens usage. The SDK fronts several upstream
// providers, so the billed provider is inferred from the model name unless
// the request names one explicitly.
type vercelAIStrategy struct{}

func (vercelAIStrategy) Provider() string {
	return ProviderVercelAI
}

func (vercelAIStrategy) CanHandle(_ []string, shape map[string]any) bool {
	usage := mapField(shape, "usage")
	if usage == nil {
		return false
	}
	_, hasPrompt := numberField(usage, "promptTokens")
	_, hasCompletion := numberField(usage, "completionTokens")
	return hasPrompt || hasCompletion
}

func (s vercelAIStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}
	usage := mapField(shape, "usage")

	model := stringField(shape, "model", "modelId")
	if model == "" {
		model = argModel(args)
	}
	if model == "" {
		model = "unknown"
	}

	provider := stringField(argShape(args, 0), "provider")
	if provider == "" {
		provider = inferProviderFromModel(model)
	}

	return &Usage{
		Provider:    provider,
		Model:       model,
		InputUnits:  optionalNumber(usage, "promptTokens"),
		OutputUnits: optionalNumber(usage, "completionTokens"),
		Metadata:    map[string]any{"sdk": ProviderVercelAI},
	}
}

func inferProviderFromModel(model string) string {
	lowered := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lowered, "gpt-"),
		strings.HasPrefix(lowered, "o1"),
		strings.HasPrefix(lowered, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(lowered, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(lowered, "gemini-"):
		return ProviderGoogle
	default:
		return ProviderOpenAI
	}
}
