package guardrail

import (
	"fmt"
	"unicode/utf8"
)

const (
	ruleHiddenChars     = "deny-hidden-characters"
	categoryHiddenChars = "hidden characters"
)

// hiddenRune reports the first rune in s that renders invisibly or differently
// from its logical order: zero-width and bidi controls, tag characters, C0/C1
// controls other than tab and newlines, and invalid UTF-8.
func hiddenRune(s string) (string, bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return fmt.Sprintf("0x%02X", s[i]), true
		}
		if isHidden(r) {
			return fmt.Sprintf("U+%04X", r), true
		}
		i += size
	}
	return "", false
}

func isHidden(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F':
		return true
	case '\u202A', '\u202B', '\u202C', '\u202D', '\u202E', '\u2066', '\u2067', '\u2068', '\u2069':
		return true
	}
	switch {
	case r <= 0x1F, r == 0x7F, r >= 0x80 && r <= 0x9F:
		return true
	case r >= 0xE0001 && r <= 0xE007F:
		return true
	}
	return false
}

func hiddenVerdict(cp string) Verdict {
	return Verdict{
		Reason:   fmt.Sprintf("Invisible or control character %s is not permitted.", cp),
		Category: categoryHiddenChars,
		RuleID:   ruleHiddenChars,
	}
}
