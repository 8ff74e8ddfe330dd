package gemini

import (
	"strings"
)

// cleanModelJSON strips Markdown fences and surrounding junk from a model
// response that was supposed to be raw JSON. Works for both objects and
// arrays; if no JSON delimiters are found the trimmed string is returned
// as-is and left for json.Unmarshal to reject.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			// Single-line weirdness; just return as-is.
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Extra safety: if there's still junk around the JSON value,
	// keep only from the first opening delimiter to the last closing one.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start != -1 && end != -1 && end > start {
			return strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
