// Package redact masks sensitive identifiers before they reach logs,
// snapshots or user-visible text.
package redact

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// visibleSuffix is how many trailing characters of an identifier stay readable.
const visibleSuffix = 3

const mask = '*'

// The patterns have no left word boundary so identifiers glued to a prefix
// ("dni12345678Z") are caught too.
var (
	// 8 digits plus a checksum letter, optionally separated.
	dniPattern = regexp.MustCompile(`\d{8}[- ]?[A-Za-z]\b`)
	// Foreign resident variant: X/Y/Z, 7 digits, checksum letter.
	niePattern = regexp.MustCompile(`[XYZxyz][- ]?\d{7}[- ]?[A-Za-z]\b`)
)

// sensitiveKeys hold a bare identifier; the whole value is masked.
var sensitiveKeys = map[string]bool{
	"dni":        true,
	"nie":        true,
	"identifier": true,
	"document":   true,
}

// freeTextKeys hold user text or payloads that may embed identifiers.
var freeTextKeys = map[string]bool{
	"body": true,
	"text": true,
}

// IsSensitiveKey reports whether values stored under key are identifiers.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// IsFreeTextKey reports whether values stored under key are message text or
// request bodies to be scrubbed.
func IsFreeTextKey(key string) bool {
	return freeTextKeys[strings.ToLower(key)]
}

// Value scrubs v as stored under key: identifiers are masked whole, byte
// payloads are walked as JSON and anything else is treated as text.
func Value(key string, v any) string {
	if IsSensitiveKey(key) {
		return Identifier(fmt.Sprint(v))
	}
	switch t := v.(type) {
	case []byte:
		return JSON(t)
	case json.RawMessage:
		return JSON(t)
	case string:
		return Text(t)
	case error:
		return Text(t.Error())
	default:
		return Text(fmt.Sprint(t))
	}
}

// Identifier masks all but the last few characters of id.
// It is idempotent: Identifier(Identifier(x)) == Identifier(x).
func Identifier(id string) string {
	runes := []rune(strings.TrimSpace(id))
	if len(runes) == 0 {
		return ""
	}
	keep := visibleSuffix
	if len(runes) <= keep {
		keep = 0
	}
	for i := 0; i < len(runes)-keep; i++ {
		runes[i] = mask
	}
	return string(runes)
}

// Text masks every identifier found inside free text.
func Text(s string) string {
	out := dniPattern.ReplaceAllStringFunc(s, Identifier)
	return niePattern.ReplaceAllStringFunc(out, Identifier)
}

// Map returns a copy of m with identifier keys masked and other values scrubbed.
func Map(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = Identifier(v)
			continue
		}
		out[k] = Text(v)
	}
	return out
}

// JSON masks identifiers inside a JSON document, walking nested objects.
// Input that is not valid JSON is treated as free text.
func JSON(raw []byte) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Text(string(raw))
	}
	out, err := json.Marshal(walk("", doc))
	if err != nil {
		return Text(string(raw))
	}
	return string(out)
}

func walk(key string, v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = walk(k, child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = walk(key, child)
		}
		return t
	case string:
		if IsSensitiveKey(key) {
			return Identifier(t)
		}
		return Text(t)
	default:
		return v
	}
}
