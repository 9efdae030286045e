package providers

import "strings"

// falStrategy handles queue-style generation responses carrying a camelCase
// requestId next to the generated artifacts. The sibling artifact field is
// part of the signature: a bare request id is not enough to claim the shape.
type falStrategy struct{}

func (falStrategy) Provider() string {
	return ProviderFal
}

func (falStrategy) CanHandle(_ []string, shape map[string]any) bool {
	if stringField(shape, "requestId") == "" {
		return false
	}
	return hasField(shape, "images") || hasField(shape, "image") || hasField(shape, "video")
}

func (s falStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}

	output := 1.0
	switch {
	case hasField(shape, "images"):
		output = float64(len(sliceField(shape, "images")))
	case hasField(shape, "video"):
		// Video is billed per second of generated footage when reported.
		if seconds, ok := numberField(shape, "duration"); ok && seconds > 0 {
			output = seconds
		}
	}

	return &Usage{
		Provider:    ProviderFal,
		Model:       falModel(args),
		OutputUnits: Float(output),
		Metadata:    map[string]any{"request_id": stringField(shape, "requestId")},
	}
}

// falModel resolves the model from the endpoint-path first argument, e.g.
// Subscribe("fal-ai/flux/dev", input) meters against "flux/dev".
func falModel(args []any) string {
	if len(args) > 0 {
		if endpoint, ok := args[0].(string); ok {
			endpoint = strings.TrimSpace(endpoint)
			if endpoint != "" {
				return strings.TrimPrefix(endpoint, "fal-ai/")
			}
		}
	}
	return DefaultModel(ProviderFal)
}
