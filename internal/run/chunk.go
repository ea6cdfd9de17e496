package run

import (
	"unicode"
	"unicode/utf8"
)

// splitChunks breaks text into pieces of at most max runes, cutting after
// whitespace when the window contains any. Concatenating the pieces yields
// the input byte for byte.
func splitChunks(text string, max int) []string {
	if max <= 0 || text == "" {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var out []string
	for text != "" {
		if utf8.RuneCountInString(text) <= max {
			out = append(out, text)
			break
		}

		cut, lastSpace, count := 0, 0, 0
		for i, r := range text {
			if count == max {
				break
			}
			count++
			cut = i + utf8.RuneLen(r)
			if unicode.IsSpace(r) {
				lastSpace = cut
			}
		}
		if lastSpace > 0 {
			cut = lastSpace
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}
