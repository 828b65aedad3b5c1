package chunking

import (
	"strings"
	"unicode"
)

// DefaultMinTailWindow is how far back from the cut point a line or word
// boundary is searched for.
const DefaultMinTailWindow = 200

// Truncator bounds documents to a character budget before they are sent to
// the model.
type Truncator struct {
	MaxChars      int
	MinTailWindow int
}

func NewTruncator(maxChars, minTailWindow int) *Truncator {
	if minTailWindow <= 0 {
		minTailWindow = DefaultMinTailWindow
	}
	return &Truncator{
		MaxChars:      maxChars,
		MinTailWindow: minTailWindow,
	}
}

func (t *Truncator) Truncate(text string) string {
	return Truncate(text, t.MaxChars, t.MinTailWindow)
}

// Truncate returns text cut to at most maxChars characters. It prefers the
// last newline in the final minTailWindow characters of the window, then the
// last space or tab in that region, and only then a hard cut. Trailing
// whitespace is trimmed from any cut result.
func Truncate(text string, maxChars, minTailWindow int) string {
	if maxChars <= 0 {
		return ""
	}
	if minTailWindow <= 0 {
		minTailWindow = DefaultMinTailWindow
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	window := runes[:maxChars]
	start := len(window) - minTailWindow
	if start < 0 {
		start = 0
	}

	if nl := lastIndexOf(window, start, '\n'); nl > 0 {
		return trimRight(window[:nl])
	}
	if ws := lastIndexOf(window, start, ' ', '\t'); ws > 0 {
		return trimRight(window[:ws])
	}
	return trimRight(window)
}

// lastIndexOf returns the last index >= start holding one of targets, or -1.
func lastIndexOf(runes []rune, start int, targets ...rune) int {
	for i := len(runes) - 1; i >= start; i-- {
		for _, r := range targets {
			if runes[i] == r {
				return i
			}
		}
	}
	return -1
}

func trimRight(runes []rune) string {
	return strings.TrimRightFunc(string(runes), unicode.IsSpace)
}
