// Package jsonsalvage tolerantly extracts a structured JSON list or
// mapping from free-form LLM output, which may be wrapped in a fenced
// code block, preceded by prose, or outright malformed.
package jsonsalvage

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind discriminates an LLMValue's payload.
type Kind int

const (
	// KindNull is the zero Kind. Salvage never returns it: total
	// extraction failure yields an empty KindArray instead.
	KindNull Kind = iota
	KindObject
	KindArray
)

// LLMValue is the tagged union returned by Salvage: callers pattern-match
// on Kind rather than doing a runtime type assertion.
type LLMValue struct {
	Kind Kind
	Obj  map[string]string
	Arr  []map[string]any
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Salvage implements the strategy ladder from spec.md §4.4: fenced block
// (strict then repaired) -> strict whole text -> scan-to-first-brace plus
// repair -> whole-text repair -> empty.
func Salvage(text string) LLMValue {
	text = strings.TrimSpace(text)
	if text == "" {
		return LLMValue{Kind: KindArray}
	}

	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if v, ok := tryStrict(inner); ok {
			return v
		}
		if v, ok := tryRepaired(inner); ok {
			return v
		}
	}

	if v, ok := tryStrict(text); ok {
		return v
	}

	if start := firstBraceOrBracket(text); start >= 0 {
		if v, ok := tryRepaired(text[start:]); ok {
			return v
		}
	}

	if v, ok := tryRepaired(text); ok {
		return v
	}

	return LLMValue{Kind: KindArray}
}

func firstBraceOrBracket(s string) int {
	for i, r := range s {
		if r == '{' || r == '[' {
			return i
		}
	}
	return -1
}

func tryStrict(s string) (LLMValue, bool) {
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return LLMValue{}, false
	}
	return fromDecoded(raw), true
}

// tryRepaired normalizes common LLM JSON mistakes (trailing commas,
// unquoted keys, single quotes, unterminated strings/arrays) and decodes
// the first JSON value of the repaired text, ignoring any prose after it.
// If that fails, it falls back to gjson, which accepts only a repaired
// text that is valid JSON as a whole.
func tryRepaired(s string) (LLMValue, bool) {
	repaired := repairJSON(s)

	var raw any
	if err := json.NewDecoder(strings.NewReader(repaired)).Decode(&raw); err == nil {
		return fromDecoded(raw), true
	}

	if !gjson.Valid(repaired) {
		return LLMValue{}, false
	}
	parsed := gjson.Parse(repaired)
	switch {
	case parsed.IsArray():
		var arr []map[string]any
		parsed.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() {
				arr = append(arr, gjsonObject(v))
			}
			return true
		})
		return LLMValue{Kind: KindArray, Arr: arr}, true
	case parsed.IsObject():
		return LLMValue{Kind: KindObject, Obj: gjsonStringMap(parsed)}, true
	default:
		return LLMValue{}, false
	}
}

func gjsonObject(v gjson.Result) map[string]any {
	m := make(map[string]any)
	v.ForEach(func(k, val gjson.Result) bool {
		m[k.String()] = val.Value()
		return true
	})
	return m
}

func gjsonStringMap(v gjson.Result) map[string]string {
	m := make(map[string]string)
	v.ForEach(func(k, val gjson.Result) bool {
		m[k.String()] = val.String()
		return true
	})
	return m
}

func fromDecoded(raw any) LLMValue {
	switch v := raw.(type) {
	case map[string]any:
		obj := make(map[string]string, len(v))
		for k, val := range v {
			obj[k] = toStringValue(val)
		}
		return LLMValue{Kind: KindObject, Obj: obj}
	case []any:
		arr := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				arr = append(arr, m)
			}
		}
		return LLMValue{Kind: KindArray, Arr: arr}
	default:
		return LLMValue{Kind: KindArray}
	}
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// repairJSON applies a set of textual fixes for the most common ways an
// LLM mangles JSON: smart/single quotes, trailing commas, unquoted keys,
// and unterminated strings/brackets. It is intentionally conservative —
// a hand-rolled pass rather than a full tokenizing parser.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	s = normalizeQuotes(s)
	s = quoteUnquotedKeys(s)
	s = stripTrailingCommas(s)
	s = closeUnbalanced(s)
	return s
}

var smartQuotes = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", "\"", "”", "\"",
)

// normalizeQuotes rewrites single-quoted string literals to double
// quotes and normalizes smart quotes, leaving already-double-quoted
// strings untouched.
func normalizeQuotes(s string) string {
	s = smartQuotes.Replace(s)
	var b strings.Builder
	inDouble := false
	inSingle := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

func quoteUnquotedKeys(s string) string {
	return unquotedKey.ReplaceAllString(s, `$1"$2"$3`)
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// closeUnbalanced appends closing brackets/braces (and a closing quote,
// if the text ends mid-string) so a truncated response still parses.
func closeUnbalanced(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
