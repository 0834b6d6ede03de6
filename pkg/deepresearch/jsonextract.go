package deepresearch

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON locates a JSON object inside raw LLM output using the
// three-tier strategy shared by QueryPlanner and ResultProcessor:
//  1. a fenced ```json ... ``` block,
//  2. the first balanced {...} block that contains requireKey,
//  3. the entire trimmed text.
//
// The winning candidate is unmarshalled into out. ExtractJSON returns an
// error if none of the three candidates parse.
func ExtractJSON(raw string, requireKey string, out interface{}) error {
	for _, candidate := range jsonCandidates(raw, requireKey) {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
	}
	return WrapError(KindBadResponse, &jsonExtractError{raw: raw})
}

type jsonExtractError struct{ raw string }

func (e *jsonExtractError) Error() string {
	const maxEcho = 200
	s := e.raw
	if len(s) > maxEcho {
		s = s[:maxEcho] + "..."
	}
	return "no valid JSON object found in LLM output: " + s
}

func jsonCandidates(raw string, requireKey string) []string {
	candidates := make([]string, 0, 3)

	if m := fencedJSONRe.FindStringSubmatch(raw); len(m) == 2 {
		candidates = append(candidates, m[1])
	}

	if block := firstBalancedObjectWithKey(raw, requireKey); block != "" {
		candidates = append(candidates, block)
	}

	candidates = append(candidates, strings.TrimSpace(raw))
	return candidates
}

// firstBalancedObjectWithKey scans raw for the first brace-balanced {...}
// substring that mentions requireKey, tolerating nested objects/arrays and
// braces inside string literals.
func firstBalancedObjectWithKey(raw string, requireKey string) string {
	needle := "\"" + requireKey + "\""
	n := len(raw)
	for start := 0; start < n; start++ {
		if raw[start] != '{' {
			continue
		}
		end := matchBrace(raw, start)
		if end == -1 {
			continue
		}
		block := raw[start : end+1]
		if strings.Contains(block, needle) {
			return block
		}
	}
	return ""
}

// matchBrace returns the index of the closing brace matching the opening
// brace at start, or -1 if unbalanced. It skips over braces that occur
// inside double-quoted string literals.
func matchBrace(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
