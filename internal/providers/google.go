package providers

import "strings"

// googleStrategy handles the usageMetadata token-count shape of the Google
// SDK family. Two sub-variants exist: some call paths hand back the payload
// wrapped in a response envelope, others hand it back directly. The wrapped
// variant must be checked strictly first or the unwrapped predicate would
// false-positive on the envelope's inner object.
type googleStrategy struct {
	wrapped bool
}

func (s googleStrategy) Provider() string {
	return ProviderGoogle
}

func (s googleStrategy) usageMetadata(shape map[string]any) map[string]any {
	if s.wrapped {
		return mapField(mapField(shape, "response"), "usageMetadata")
	}
	return mapField(shape, "usageMetadata")
}

func (s googleStrategy) CanHandle(_ []string, shape map[string]any) bool {
	usage := s.usageMetadata(shape)
	if usage == nil {
		return false
	}
	_, hasPrompt := numberField(usage, "promptTokenCount")
	_, hasCandidates := numberField(usage, "candidatesTokenCount")
	return hasPrompt || hasCandidates
}

func (s googleStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}
	usage := s.usageMetadata(shape)

	body := shape
	if s.wrapped {
		body = mapField(shape, "response")
	}

	model := stringField(body, "modelVersion", "model")
	if model == "" {
		model = argModel(args)
	}
	if model == "" {
		model = modelFromPath(path)
	}
	if model == "" {
		model = "unknown"
	}

	return &Usage{
		Provider:         ProviderGoogle,
		Model:            strings.TrimPrefix(model, "models/"),
		InputUnits:       optionalNumber(usage, "promptTokenCount"),
		OutputUnits:      optionalNumber(usage, "candidatesTokenCount"),
		CachedInputUnits: optionalNumber(usage, "cachedContentTokenCount"),
	}
}

// modelFromPath scans method-path segments for something that reads like a
// Google model identifier, e.g. a chat session created off "gemini-2.0-flash".
func modelFromPath(path []string) string {
	for _, segment := range path {
		lowered := strings.ToLower(segment)
		if strings.HasPrefix(lowered, "models/") ||
			strings.Contains(lowered, "gemini") ||
			strings.Contains(lowered, "imagen") {
			return segment
		}
	}
	return ""
}
