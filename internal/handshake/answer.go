package handshake

import (
	"encoding/json"
	"strings"
)

// Answer builds the peer's reply to a probe: {"connected":true} when the probe
// is well formed, otherwise {"errors":"a, b"} listing every violation.
func Answer(address string, args []any) (reply string, violations []string) {
	if address != DefaultAddress {
		violations = append(violations, "address pattern must be "+DefaultAddress)
	}
	if len(args) == 0 {
		violations = append(violations, "argument must not be empty")
	}
	if len(args) > 1 {
		violations = append(violations, "argument must not have more than 1 element")
	}

	var text string
	if len(args) > 0 {
		s, ok := args[0].(string)
		if !ok {
			violations = append(violations, "argument must be of type string")
		}
		text = s
	}

	if !objectPattern.MatchString(text) {
		violations = append(violations, "argument must be a structured object")
	} else {
		var probe map[string]any
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			violations = append(violations, "argument must be a structured object")
		} else if _, ok := probe["connected"].(bool); !ok {
			violations = append(violations, "connected must be of type boolean")
		}
	}

	var payload map[string]any
	if len(violations) > 0 {
		payload = map[string]any{"errors": strings.Join(violations, ", ")}
	} else {
		payload = map[string]any{"connected": true}
	}
	out, _ := json.Marshal(payload)
	return string(out), violations
}
