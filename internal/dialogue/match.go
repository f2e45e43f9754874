package dialogue

import "strings"

// ContainsPhrase reports whether phrase occurs in s on word boundaries. Both
// are compared as given; callers lower-case first.
func ContainsPhrase(s, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(phrase)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		i = start + 1
	}
}

// ContainsAnyPhrase reports whether any of phrases occurs in s.
func ContainsAnyPhrase(s string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsPhrase(s, p) {
			return true
		}
	}
	return false
}

// isLetter treats every non-ASCII byte as part of a word, so umlauts never
// split one.
func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}
