// Package levenshtein computes edit distances for domain typo hints.
package levenshtein

// Distance returns the Levenshtein edit distance between a and b,
// counted in runes.
func Distance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) < len(br) {
		ar, br = br, ar
	}
	if len(br) == 0 {
		return len(ar)
	}

	// row[j] holds the distance between the current prefix of ar and br[:j]
	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(br); j++ {
			up := row[j]
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, diag+cost)
			diag = up
		}
	}
	return row[len(br)]
}

// Closest returns the candidate nearest to s within maxDist edits.
// An exact match returns ("", 0): there is nothing to suggest.
// ok is false when no candidate is close enough.
func Closest(s string, candidates []string, maxDist int) (match string, dist int, ok bool) {
	best := maxDist + 1
	for _, c := range candidates {
		if c == s {
			return "", 0, false
		}
		if d := Distance(s, c); d < best {
			best, match = d, c
		}
	}
	if match == "" {
		return "", 0, false
	}
	return match, best, true
}
