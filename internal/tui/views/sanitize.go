package views

import "strings"

// sanitizeForTerminal drops the combining codepoints tcell cannot size:
// skin tone modifiers, zero width joiners and variation selectors. What is
// left of an emoji sequence renders as its base glyph.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if isCombiningEmojiRune(r) {
			return -1
		}
		return r
	}, s)
}

func isCombiningEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
