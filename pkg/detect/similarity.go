package detect

import "strings"

// Similarity returns a [0,1] ratio between two strings based on Levenshtein
// edit distance over lowercased, whitespace-trimmed input. 1.0 means
// identical, 0.0 means nothing in common.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	dist := levenshteinDistance(a, b)
	maxLen := max(len(a), len(b))

	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings.
// Single-row formulation, O(min(m,n)) space.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Keep b the shorter string so the row stays small.
	if len(a) < len(b) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prevDiag := prev[0]
		prev[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			temp := prev[j]
			prev[j] = min(prev[j]+1, min(prev[j-1]+1, prevDiag+cost))
			prevDiag = temp
		}
	}

	return prev[len(b)]
}
