package orchestrator

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	accentReplacer = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	)
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, folds the Spanish accented vowels and ñ to ASCII,
// replaces every other non [a-z0-9] rune with a space and collapses runs of
// whitespace. The result is idempotent and safe for substring comparison.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = accentReplacer.Replace(s)
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	s = multiSpacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// containsWord reports whether term occurs in text as a whole
// space-delimited word sequence. Both arguments must already be normalized.
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+term+" ")
}
