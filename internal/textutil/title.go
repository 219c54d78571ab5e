package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// TitleCase capitalises each word. Text that already mixes cases is kept, so
// acronyms and deliberate casing from the caller survive.
func TitleCase(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" || value != strings.ToLower(value) {
		return value
	}
	return titleCaser.String(value)
}

// SafeTitle keeps letters, digits, spaces, hyphens and underscores. It
// returns fallback when nothing survives.
func SafeTitle(value, fallback string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return fallback
	}
	return out
}
