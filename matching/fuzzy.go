package matching

import (
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var htmlTagPattern = regexp.MustCompile(`<.*?>`)

// Ratio scores string similarity on a 0-100 scale from the normalized
// Levenshtein distance. Case-sensitive; callers normalize first.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}

	dist := levenshtein.ComputeDistance(a, b)
	similarity := 1.0 - float64(dist)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return int(math.Round(similarity * 100))
}

// CleanText strips HTML tags, collapses whitespace and lowercases. Used on
// free-text name fields (logged-in usernames, requester names) before
// matching them against employee names.
func CleanText(text string) string {
	noTags := htmlTagPattern.ReplaceAllString(text, "")
	return strings.ToLower(strings.Join(strings.Fields(noTags), " "))
}
