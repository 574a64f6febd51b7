package http

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageBytes bounds a single user message.
const MaxMessageBytes = 4096

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrInvalidUTF8     = errors.New("message is not valid UTF-8")
)

// SanitizeMessage rejects oversized or malformed input and strips control
// characters other than newline, tab and carriage return.
func SanitizeMessage(input string) (string, error) {
	if len(input) > MaxMessageBytes {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrMessageTooLarge, len(input), MaxMessageBytes)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, input), nil
}
