package output

import "fmt"

// NormalizeJSONValue rewrites decoded CBOR values so encoding/json accepts
// them: map[any]any keys become strings and byte strings are reported by
// length.
func NormalizeJSONValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		return map[string]any{"bytes": len(val)}
	default:
		return v
	}
}
