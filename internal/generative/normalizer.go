package generative

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind identifies which variant of the normalization union applies.
type Kind int

const (
	// KindStructured means the backend text parsed to a JSON object.
	KindStructured Kind = iota
	// KindPartialSections means only named sections could be recovered.
	KindPartialSections
	// KindUnstructured means nothing parseable was found.
	KindUnstructured
)

// sectionKeys are the named sections stage 5 attempts to recover.
var sectionKeys = [...]string{"summary", "health_impact", "recommendations", "next_steps"}

// excerptLimit bounds the raw text carried by the Unstructured variant.
const excerptLimit = 200

// NormalizedResponse is the tagged union produced by Normalize. Callers
// switch on Kind; exactly one variant is populated per input.
type NormalizedResponse struct {
	Kind Kind
	// Object holds the parsed JSON object for KindStructured.
	Object map[string]any
	// Sections holds the recovered key/value pairs for
	// KindPartialSections, and placeholder empty collections for
	// KindUnstructured.
	Sections map[string]any
	// Raw holds a truncated excerpt of the input for KindUnstructured.
	Raw string
}

var (
	fencedJSONRE   = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRE    = regexp.MustCompile("(?s)```\\s*(.*?)```")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	danglingKeyRE  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:\s*([,}\]])`)
	danglingTailRE = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:\s*$`)
)

// Normalize hardens callers of the generative backend by converting its
// free-text answer into structured data through a staged degrade. It
// never fails: every input maps to exactly one union variant.
func Normalize(raw string) NormalizedResponse {
	text := strings.TrimSpace(raw)

	// Stage 1: the whole answer is already JSON.
	if obj, ok := parseObject(text); ok {
		return NormalizedResponse{Kind: KindStructured, Object: obj}
	}

	// Stage 2: a fenced ```json block somewhere in the answer.
	if inner, ok := fencedBlock(text); ok {
		if obj, ok := parseObject(inner); ok {
			return NormalizedResponse{Kind: KindStructured, Object: obj}
		}
	}

	// Stage 3: the outermost {...} substring.
	candidate, hasBraces := outermostBraces(text)
	if hasBraces {
		if obj, ok := parseObject(candidate); ok {
			return NormalizedResponse{Kind: KindStructured, Object: obj}
		}

		// Stage 4: repair the candidate and retry.
		if obj, ok := parseObject(repairJSON(candidate)); ok {
			return NormalizedResponse{Kind: KindStructured, Object: obj}
		}
	}

	// Stage 5: regex-extract named sections.
	if sections := extractSections(text); len(sections) > 0 {
		return NormalizedResponse{Kind: KindPartialSections, Sections: sections}
	}

	// Stage 6: nothing recoverable; hand back a bounded excerpt plus
	// placeholder collections for the expected keys.
	placeholders := map[string]any{
		"summary":         "",
		"health_impact":   []string{},
		"recommendations": []string{},
		"next_steps":      []string{},
	}
	return NormalizedResponse{Kind: KindUnstructured, Sections: placeholders, Raw: excerpt(text)}
}

func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func fencedBlock(text string) (string, bool) {
	if match := fencedJSONRE.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1]), true
	}
	if match := fencedAnyRE.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1]), true
	}
	return "", false
}

// outermostBraces returns the greedy substring from the first '{' to
// the last '}' , or everything from the first '{' when no closer exists
// (the repair stage appends the missing closers).
func outermostBraces(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return text[start:], true
	}
	return text[start : end+1], true
}

// repairJSON applies the mechanical fixes that cover the common ways a
// text model truncates or mangles JSON: unmatched brackets, dangling
// keys, trailing commas.
func repairJSON(candidate string) string {
	repaired := danglingKeyRE.ReplaceAllString(candidate, `"$1": ""$2`)
	repaired = danglingTailRE.ReplaceAllString(repaired, `"$1": ""`)
	repaired = trailingComma.ReplaceAllString(repaired, "$1")
	repaired = strings.TrimSpace(repaired)
	repaired = strings.TrimSuffix(repaired, ",")
	return repaired + missingClosers(repaired)
}

// missingClosers walks the candidate outside of string literals and
// returns the closers for any brackets left open, innermost first.
func missingClosers(text string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
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
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var closers strings.Builder
	if inString {
		closers.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			closers.WriteByte('}')
		} else {
			closers.WriteByte(']')
		}
	}
	return closers.String()
}

// extractSections recovers individual named sections from prose. For
// each expected key it captures the following quoted string, bracketed
// value, or numbered-list content.
func extractSections(text string) map[string]any {
	sections := make(map[string]any)
	for _, key := range sectionKeys {
		if value, ok := extractSection(text, key); ok {
			sections[key] = value
		}
	}
	return sections
}

func extractSection(text, key string) (any, bool) {
	keyRE := regexp.MustCompile(`(?im)"?` + regexp.QuoteMeta(key) + `"?\s*:`)
	loc := keyRE.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	rest := strings.TrimSpace(text[loc[1]:])
	if rest == "" {
		return nil, false
	}

	switch rest[0] {
	case '"':
		if match := regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"`).FindStringSubmatch(rest); match != nil {
			return match[1], true
		}
	case '[':
		if match := regexp.MustCompile(`(?s)^\[[^\]]*\]`).FindString(rest); match != "" {
			var arr []any
			if err := json.Unmarshal([]byte(match), &arr); err == nil {
				return arr, true
			}
			return strings.Trim(match, "[]"), true
		}
	case '{':
		if match := regexp.MustCompile(`(?s)^\{[^}]*\}`).FindString(rest); match != "" {
			var obj map[string]any
			if err := json.Unmarshal([]byte(match), &obj); err == nil {
				return obj, true
			}
			return match, true
		}
	}

	if items := numberedList(rest); len(items) > 0 {
		return items, true
	}

	// Fall back to the remainder of the line.
	if idx := strings.IndexByte(rest, '\n'); idx > 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ","))
	if rest == "" {
		return nil, false
	}
	return rest, true
}

var numberedItemRE = regexp.MustCompile(`^\s*\d+[.)]\s+(.*\S)\s*$`)

func numberedList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		match := numberedItemRE.FindStringSubmatch(line)
		if match == nil {
			if len(items) > 0 {
				break
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			break
		}
		items = append(items, match[1])
	}
	return items
}

func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit]
}
