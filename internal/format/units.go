package format

// Units returns the length of s in UTF-16 code units, the measure Telegram
// applies to message text.
func Units(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// PrefixUnits returns the longest prefix of s that is at most n UTF-16 units.
// A rune outside the BMP (a surrogate pair) is never split.
func PrefixUnits(s string, n int) string {
	w := 0
	for pos, r := range s {
		w += runeUnits(r)
		if w > n {
			return s[:pos]
		}
	}
	return s
}

func runeUnits(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
