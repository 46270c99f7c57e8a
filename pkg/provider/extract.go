package provider

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// Extractor is a pure extraction rule: it returns the reply text found in a
// raw response body and whether it matched.
type Extractor func(raw []byte) (string, bool)

// Path matches when the gjson path resolves to a non-blank string.
func Path(path string) Extractor {
	return func(raw []byte) (string, bool) {
		res := gjson.GetBytes(raw, path)
		if res.Type != gjson.String {
			return "", false
		}
		if strings.TrimSpace(res.Str) == "" {
			return "", false
		}
		return res.Str, true
	}
}

// JoinPath matches when the gjson path resolves to an array containing at
// least one non-blank string; the strings are concatenated in order.
// Use it with the '#' modifier, e.g. "candidates.0.content.parts.#.text".
func JoinPath(path string) Extractor {
	return func(raw []byte) (string, bool) {
		res := gjson.GetBytes(raw, path)
		if !res.IsArray() {
			return "", false
		}
		var b strings.Builder
		for _, item := range res.Array() {
			if item.Type == gjson.String {
				b.WriteString(item.Str)
			}
		}
		out := b.String()
		if strings.TrimSpace(out) == "" {
			return "", false
		}
		return out, true
	}
}

// Extract applies rules in order; the first match wins. When no rule matches,
// the raw body is used: a JSON string yields its value, any other JSON value
// yields its compact text. Empty documents (null, {}, []) never match.
func Extract(raw []byte, rules []Extractor) (string, bool) {
	for _, rule := range rules {
		if text, ok := rule(raw); ok {
			return text, true
		}
	}

	doc := gjson.ParseBytes(raw)
	switch doc.Type {
	case gjson.Null:
		return "", false
	case gjson.String:
		if strings.TrimSpace(doc.Str) == "" {
			return "", false
		}
		return doc.Str, true
	}
	if doc.IsObject() || doc.IsArray() {
		empty := true
		doc.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		if empty {
			return "", false
		}
	}

	text := string(bytes.TrimSpace(raw))
	if text == "" {
		return "", false
	}
	return text, true
}
