package core

import "strings"

// SanitizeText strips runes outside the 7-bit ASCII range so that stored
// text is safe for downstream logging and display regardless of terminal
// or encoding.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0x7F {
			b.WriteRune(r)
		}
	}
	return b.String()
}
