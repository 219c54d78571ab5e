package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName turns a handout title into a portable file name. Path
// separators, colons and asterisks become "-"; the remaining reserved
// characters and control characters are dropped.
func SanitizeFileName(name string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*`, r):
			return '-'
		case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(name)))
}

// SanitizeToken lowercases value for use as a directory name. ASCII letters,
// digits, "-" and "_" survive and everything else becomes "_". Blank or
// all-punctuation input gives "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return unicode.ToLower(r)
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
