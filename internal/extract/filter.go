package extract

import "strings"

// ContainsBlockedTerm returns true if any blocked term appears
// (case-insensitive) anywhere in text.
//
// Checked before extraction; a hit means the post is skipped, not failed.
func ContainsBlockedTerm(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
