package utils

import "strings"

const (
	// PhoneMinDigits is the minimum accepted length for a normalized number
	PhoneMinDigits = 8
	// PhoneMaxDigits is the maximum accepted length for a normalized number
	PhoneMaxDigits = 15
)

// NormalizePhone strips every non-digit character from a phone number,
// producing the digits-only international format the provider expects
// (no leading '+', no separators).
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone reports whether a normalized number has an acceptable length.
// The input must already be digits-only.
func IsValidPhone(normalized string) bool {
	return len(normalized) >= PhoneMinDigits && len(normalized) <= PhoneMaxDigits
}
