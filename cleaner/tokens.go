package cleaner

import "unicode/utf8"

// EstimateTokens gives a rough token count for a fragment: rune count / 3.
// It only feeds logs and metrics, never a limit.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}
