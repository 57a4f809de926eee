package textwrap

import (
	"strings"
	"unicode/utf8"
)

// Fill reflows text into lines of at most width runes. Whitespace runs,
// newlines included, collapse to a single space; a word longer than width
// is split across lines.
func Fill(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if width <= 0 {
		return strings.Join(words, " ")
	}
	var (
		sb      strings.Builder
		lineLen int
	)
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			if lineLen > 0 {
				sb.WriteByte('\n')
				lineLen = 0
			}
			runes := []rune(word)
			sb.WriteString(string(runes[:width]))
			sb.WriteByte('\n')
			word = string(runes[width:])
		}
		if word == "" {
			continue
		}
		n := utf8.RuneCountInString(word)
		switch {
		case lineLen == 0:
		case lineLen+1+n <= width:
			sb.WriteByte(' ')
			lineLen++
		default:
			sb.WriteByte('\n')
			lineLen = 0
		}
		sb.WriteString(word)
		lineLen += n
	}
	return strings.TrimRight(sb.String(), "\n")
}
