package views

import "strings"

// sanitizeForTerminal strips codepoints tcell renders badly: skin tone
// modifiers, zero width joiners and variation selectors all confuse the
// cell-width math and smear neighbouring columns.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
			return -1
		case r == 0x200D: // zero width joiner
			return -1
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
			return -1
		case r >= 0xE0100 && r <= 0xE01EF: // variation selector supplement
			return -1
		}
		return r
	}, s)
}
