// Package salvage recovers a JSON result object from process output that
// mixes JSON with log noise. Speed-test CLIs routinely interleave progress
// text and multiple JSON documents on one stream; rather than failing on
// the first stray line, the parser extracts every complete top-level JSON
// block and picks the one that looks most like a measurement result.
package salvage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reason classifies why no result object could be recovered.
type Reason string

const (
	ReasonInvalidJSON Reason = "invalid_json"
	ReasonEmptyOutput Reason = "empty_output"
)

// ParseError carries the failure class and a head/tail excerpt of the
// offending input for diagnostics.
type ParseError struct {
	Reason  Reason
	Excerpt string
}

func (e *ParseError) Error() string {
	if e.Excerpt == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Excerpt)
}

// scoring rule table: presence of result-shaped fields adds points, an
// explicit type:"result" is decisive.
var fieldScores = map[string]int{
	"ping":     3,
	"download": 3,
	"upload":   3,
	"server":   1,
	"isp":      1,
}

// Extract returns the most result-shaped JSON object found in raw. A
// well-formed JSON object input is returned unchanged without salvage.
func Extract(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Reason: ReasonEmptyOutput}
	}

	var direct any
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		if obj, ok := direct.(map[string]any); ok {
			return obj, nil
		}
	}

	best, found := scanBlocks(trimmed)
	if !found {
		return nil, &ParseError{Reason: ReasonInvalidJSON, Excerpt: excerpt(trimmed)}
	}
	return best, nil
}

// scanBlocks walks raw left to right, extracting each complete top-level
// {...} or [...] block while respecting string quoting and escapes, and
// keeps the highest-scoring parsed object.
func scanBlocks(raw string) (map[string]any, bool) {
	var (
		best      map[string]any
		bestScore = -1
	)

	consider := func(obj map[string]any) (decisive bool) {
		sc, decisive := Score(obj)
		if decisive {
			best = obj
			return true
		}
		if sc > bestScore {
			best, bestScore = obj, sc
		}
		return false
	}

	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				block := raw[start : i+1]
				start = -1
				objs := parseBlock(block)
				if objs == nil && len(block) > 2 {
					// A stray brace in the noise can swallow a valid
					// document; rescan past the bogus opener.
					if obj, ok := scanBlocks(block[1:]); ok {
						objs = []map[string]any{obj}
					}
				}
				for _, obj := range objs {
					if consider(obj) {
						return best, true
					}
				}
			}
		}
	}

	return best, best != nil
}

// parseBlock decodes one extracted block. Arrays contribute their object
// elements as candidates; blocks that fail to parse are discarded.
func parseBlock(block string) []map[string]any {
	var v any
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, el := range t {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	default:
		return nil
	}
}

// Score rates how result-shaped obj is. decisive is true when obj carries
// an explicit type:"result" marker, which short-circuits the scan.
func Score(obj map[string]any) (score int, decisive bool) {
	if t, ok := obj["type"].(string); ok && t == "result" {
		return 1 << 10, true
	}
	for field, pts := range fieldScores {
		if _, ok := obj[field]; ok {
			score += pts
		}
	}
	return score, false
}

const excerptLen = 120

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 2*excerptLen {
		return s
	}
	return s[:excerptLen] + " ... " + s[len(s)-excerptLen:]
}
