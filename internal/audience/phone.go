package audience

import "strings"

// LocalNumberDigits is how many trailing digits of a phone value are kept.
// Longer inputs lose their leading digits, including any embedded country
// code, before the resolved dial prefix is applied.
const LocalNumberDigits = 10

// PhoneDigits strips every non-digit and keeps the last LocalNumberDigits.
func PhoneDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; '0' <= c && c <= '9' {
			b.WriteByte(c)
		}
	}
	digits := b.String()
	if len(digits) > LocalNumberDigits {
		digits = digits[len(digits)-LocalNumberDigits:]
	}
	return digits
}

// NormalizePhone prepends dialPrefix to the truncated digits of raw. A
// value without digits stays empty whatever the country.
func NormalizePhone(raw, dialPrefix string) string {
	digits := PhoneDigits(raw)
	if digits == "" {
		return ""
	}
	return dialPrefix + digits
}
