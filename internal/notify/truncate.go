package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultBodyMaxRunes is the default length cap for comment and post excerpts.
const DefaultBodyMaxRunes = 50

const ellipsis = "…"

// Truncate shortens s to at most max runes. Invalid UTF-8 sequences are
// replaced first so the result is always valid. When s is cut, the trailing
// ellipsis is counted toward max.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.ToValidUTF8(s, "�")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return ellipsis
	}

	runes := []rune(s)
	head := strings.TrimRightFunc(string(runes[:max-1]), unicode.IsSpace)
	return head + ellipsis
}
