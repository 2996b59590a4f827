// Package fuzzy scores free-text product names against catalog names.
package fuzzy

import "strings"

// ConfirmationThreshold is the lowest score at which a match is trusted
// without asking the user.
const ConfirmationThreshold = 0.8

const (
	scoreExact     = 1.0
	scoreContains  = 0.9
	scoreContained = 0.8
)

// Score rates how well term matches candidate, in [0, 1]. Rules apply in
// order: case-folded equality, candidate contains term, term contains
// candidate, then the ratio of shared words to the longer word list.
func Score(term, candidate string) float64 {
	t := strings.ToLower(strings.TrimSpace(term))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if t == "" || c == "" {
		return 0
	}

	switch {
	case t == c:
		return scoreExact
	case strings.Contains(c, t):
		return scoreContains
	case strings.Contains(t, c):
		return scoreContained
	}

	tw := uniqueWords(t)
	cw := uniqueWords(c)
	common := 0
	for w := range tw {
		if cw[w] {
			common++
		}
	}
	return float64(common) / float64(max(len(tw), len(cw)))
}

func uniqueWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// Best returns the index and score of the highest-scoring name. Ties keep
// the earliest name. It returns -1 when names is empty.
func Best(term string, names []string) (int, float64) {
	idx, best := -1, 0.0
	for i, name := range names {
		if s := Score(term, name); idx < 0 || s > best {
			idx, best = i, s
		}
	}
	return idx, best
}

// Confident reports whether score clears ConfirmationThreshold.
func Confident(score float64) bool {
	return score >= ConfirmationThreshold
}
