package audience

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// NormalizeName transliterates to ASCII, lowercases and keeps only ASCII
// letters and digits. The result is a fixed point: NormalizeName of its
// own output returns it unchanged.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	ascii := strings.ToLower(unidecode.Unidecode(name))

	var b strings.Builder
	b.Grow(len(ascii))
	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		if ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitName derives first and last name from one combined value: the first
// and last whitespace-separated tokens. A single token fills both.
func SplitName(full string) (first, last string) {
	tokens := strings.Fields(full)
	if len(tokens) == 0 {
		return "", ""
	}
	return tokens[0], tokens[len(tokens)-1]
}
