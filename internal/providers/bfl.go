package providers

import "regexp"

// bflStrategy handles task-id responses that carry a bare "id" plus a
// "sample" artifact. The shape is visually close to the fal one, so anything
// carrying fal's camelCase request id is explicitly excluded.
type bflStrategy struct{}

func (bflStrategy) Provider() string {
	return ProviderBFL
}

func (bflStrategy) CanHandle(_ []string, shape map[string]any) bool {
	if shape == nil || stringField(shape, "requestId") != "" {
		return false
	}
	return stringField(shape, "id") != "" && hasField(shape, "sample")
}

func (s bflStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}
	return &Usage{
		Provider:    ProviderBFL,
		Model:       bflModel(shape, args),
		OutputUnits: Float(1),
		Metadata:    map[string]any{"task_id": stringField(shape, "id")},
	}
}

var bflEndpointModel = regexp.MustCompile(`flux[a-z0-9.-]*`)

func bflModel(shape map[string]any, args []any) string {
	if model := stringField(shape, "model"); model != "" {
		return model
	}
	request := argShape(args, 0)
	if model := stringField(request, "model"); model != "" {
		return model
	}
	if endpoint := stringField(request, "endpoint"); endpoint != "" {
		if match := bflEndpointModel.FindString(endpoint); match != "" {
			return match
		}
	}
	return DefaultModel(ProviderBFL)
}
