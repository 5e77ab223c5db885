package activation

import "strings"

// MatchTitle returns the index of the first candidate that equals target,
// is contained in target, or contains target, or -1. Empty candidates never
// match.
func MatchTitle(target string, candidates []string) int {
	if target == "" {
		return -1
	}
	for i, c := range candidates {
		if c == "" {
			continue
		}
		if c == target || strings.Contains(target, c) || strings.Contains(c, target) {
			return i
		}
	}
	return -1
}
