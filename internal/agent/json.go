package agent

import (
	"encoding/json"
	"strings"
)

// stripFences removes a ```json or ``` wrapper around the whole text.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, Fence) {
		return text
	}
	text = strings.TrimPrefix(text, Fence)
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimPrefix(text, "JSON")
	text = strings.TrimSuffix(strings.TrimSpace(text), Fence)
	return strings.TrimSpace(text)
}

// decodeObject parses text as a JSON object after fence stripping. Keys have
// stray backslashes removed; some providers escape underscores.
func decodeObject(text string) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil || raw == nil {
		return nil, false
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ReplaceAll(k, `\`, "")] = v
	}
	return out, true
}

// firstFencedBlock returns the trimmed body of the first fenced block.
func firstFencedBlock(text string) (string, bool) {
	m := firstFenceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// stringValue renders a decoded JSON value as text.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
