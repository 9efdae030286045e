package providers

import (
	"regexp"
	"strings"
)

// bedrockStrategy handles the camelCase inputTokens/outputTokens usage shape
// of the Bedrock runtime. The camel casing alone is too weak a signal, so the
// match is additionally gated on a response-metadata envelope or an explicit
// model id field.
type bedrockStrategy struct{}

func (bedrockStrategy) Provider() string {
	return ProviderBedrock
}

func (bedrockStrategy) CanHandle(_ []string, shape map[string]any) bool {
	usage := mapField(shape, "usage")
	if usage == nil {
		return false
	}
	_, hasInput := numberField(usage, "inputTokens")
	_, hasOutput := numberField(usage, "outputTokens")
	if !hasInput && !hasOutput {
		return false
	}
	return hasField(shape, "$metadata") ||
		hasField(shape, "ResultMetadata") ||
		stringField(shape, "modelId") != ""
}

func (s bedrockStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}
	usage := mapField(shape, "usage")

	modelID := stringField(shape, "modelId")
	if modelID == "" {
		modelID = stringField(argShape(args, 0), "modelId", "model")
	}

	out := &Usage{
		Provider:    ProviderBedrock,
		Model:       CanonicalBedrockModel(modelID),
		InputUnits:  optionalNumber(usage, "inputTokens"),
		OutputUnits: optionalNumber(usage, "outputTokens"),
	}
	if modelID != "" {
		out.Metadata = map[string]any{"model_id": modelID}
	}
	return out
}

var (
	bedrockRegionPrefix  = regexp.MustCompile(`^[a-z]{2}\.`)
	bedrockVersionSuffix = regexp.MustCompile(`-v\d+(:\d+)?$`)
	bedrockDateSuffix    = regexp.MustCompile(`-\d{8}$`)
)

// CanonicalBedrockModel reduces a composite Bedrock model id to its model
// family name for rate-table lookup: region prefix, then version suffix, then
// trailing 8-digit date, stripped in that order.
// "us.anthropic.claude-sonnet-4-20250514-v1:0" -> "anthropic.claude-sonnet-4".
func CanonicalBedrockModel(modelID string) string {
	model := strings.TrimSpace(modelID)
	if model == "" {
		return "unknown"
	}
	model = bedrockRegionPrefix.ReplaceAllString(model, "")
	model = bedrockVersionSuffix.ReplaceAllString(model, "")
	model = bedrockDateSuffix.ReplaceAllString(model, "")
	return model
}
