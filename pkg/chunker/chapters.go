package chunker

import (
	"regexp"
	"strings"
)

// ChapterPolicy decides whether a line opens a chapter and, if so, which
// label identifies it. Implementations must be safe for concurrent use.
type ChapterPolicy interface {
	Heading(line string) (label string, ok bool)
}

const (
	maxChapterLabel       = 500
	truncatedChapterLabel = 450
)

var romanNumeralStart = regexp.MustCompile(`^[IVXLCDM]+\b`)

// DefaultChapterPolicy recognizes lines that open with the lexeme
// "capítulo" (any case) or with an upper-case Roman-numeral token.
type DefaultChapterPolicy struct{}

func (DefaultChapterPolicy) Heading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "capítulo") &&
		!romanNumeralStart.MatchString(trimmed) {
		return "", false
	}
	if runes := []rune(trimmed); len(runes) > maxChapterLabel {
		trimmed = string(runes[:truncatedChapterLabel])
	}
	return trimmed, true
}
