// Package sanitize cleans free-form strings that arrive from tool clients
// before they reach the driver or the audit log.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the maximum length of a pattern name, in runes.
const MaxNameLength = 128

// MaxInstrumentLength is the maximum length of an instrument address.
const MaxInstrumentLength = 256

// MaxLogValueLength bounds string values written to the audit log.
const MaxLogValueLength = 64

// Name cleans a pattern name: control characters are dropped, surrounding
// whitespace is trimmed and the result is cut to MaxNameLength runes.
// Interior spaces are kept, so "ramp up" stays a distinct name.
func Name(input string) string {
	if input == "" {
		return ""
	}
	s := strings.TrimSpace(stripControlChars(input))
	return truncateRunes(s, MaxNameLength)
}

// Instrument cleans an instrument address such as "GPIB0::17::INSTR" or
// "TCPIP0::10.0.0.5::inst0::INSTR", keeping only the characters used by
// VISA-style resource strings.
func Instrument(input string) string {
	if input == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			strings.ContainsRune(":._-/[]", r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > MaxInstrumentLength {
		s = s[:MaxInstrumentLength]
	}
	return s
}

// LogValue prepares a string for a single-line log field. Control
// characters, newlines included, are removed and long values are cut
// with a trailing "...".
func LogValue(input string) string {
	s := stripControlChars(input)
	if utf8.RuneCountInString(s) > MaxLogValueLength {
		return truncateRunes(s, MaxLogValueLength) + "..."
	}
	return s
}

// stripControlChars removes Unicode control characters and invalid UTF-8.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
