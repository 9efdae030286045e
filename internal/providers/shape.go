package providers

import (
	"encoding/json"
	"strings"
)

// Shape normalizes an arbitrary response value into a map view that the
// structural predicates can probe. Maps pass through; structs and struct
// pointers go through a JSON round trip so field names follow their json
// tags, the same names the provider put on the wire. Anything that cannot be
// viewed as an object returns nil.
func Shape(value any) map[string]any {
	switch typed := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return typed
	case []byte:
		out, _ := parseJSONMap(typed)
		return out
	case string, bool, int, int32, int64, float32, float64:
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	out, _ := parseJSONMap(raw)
	return out
}

func parseJSONMap(raw []byte) (map[string]any, bool) {
	value := strings.TrimSpace(string(raw))
	if value == "" || !strings.HasPrefix(value, "{") {
		return nil, false
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, false
	}
	return out, true
}

func mapField(values map[string]any, key string) map[string]any {
	if values == nil {
		return nil
	}
	out, _ := values[key].(map[string]any)
	return out
}

func sliceField(values map[string]any, key string) []any {
	if values == nil {
		return nil
	}
	out, _ := values[key].([]any)
	return out
}

func stringField(values map[string]any, keys ...string) string {
	for _, key := range keys {
		if values == nil {
			return ""
		}
		if raw, ok := values[key].(string); ok {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func hasField(values map[string]any, key string) bool {
	if values == nil {
		return false
	}
	_, ok := values[key]
	return ok
}

// numberField returns the first present numeric field among keys. The second
// return distinguishes "reported as 0" from "not reported".
func numberField(values map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		switch typed := raw.(type) {
		case float64:
			return typed, true
		case float32:
			return float64(typed), true
		case int:
			return float64(typed), true
		case int64:
			return float64(typed), true
		case json.Number:
			parsed, err := typed.Float64()
			if err != nil {
				continue
			}
			return parsed, true
		}
	}
	return 0, false
}

// optionalNumber returns a pointer form of numberField for Usage construction.
func optionalNumber(values map[string]any, keys ...string) *float64 {
	if v, ok := numberField(values, keys...); ok {
		return &v
	}
	return nil
}

// argShape returns the map view of args[index], or nil when out of range.
func argShape(args []any, index int) map[string]any {
	if index < 0 || index >= len(args) {
		return nil
	}
	return Shape(args[index])
}

// argModel reads a "model" field out of the first positional argument, the
// conventional request-struct location across provider SDKs.
func argModel(args []any) string {
	return stringField(argShape(args, 0), "model")
}
