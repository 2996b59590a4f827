package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gzhole/shopbot/internal/fuzzy"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		term      string
		candidate string
		want      float64
	}{
		{"exact", "Apple Juice", "Apple Juice", 1.0},
		{"exact case-folded", "apple JUICE", "Apple Juice", 1.0},
		{"candidate contains term", "juice", "Apple Juice (1000ml)", 0.9},
		{"term contains candidate", "a big banana please", "Banana", 0.8},
		{"word overlap", "green apple", "Apple Pomace", 0.5},
		{"word overlap longer side wins", "orange juice fresh", "Apple Juice", 1.0 / 3.0},
		{"disjoint", "zzz", "Apple Juice", 0},
		{"empty term", "", "Apple Juice", 0},
		{"blank candidate", "juice", "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fuzzy.Score(tt.term, tt.candidate), 1e-9)
		})
	}
}

func TestScore_SelfIsOne(t *testing.T) {
	for _, s := range []string{"a", "Apple Juice (1000ml)", "OWASP Juice Shop Hoodie", "x y z"} {
		assert.Equal(t, 1.0, fuzzy.Score(s, s), s)
		assert.Equal(t, 1.0, fuzzy.Score(s, "  "+s+" "), s)
	}
}

func TestScore_Thresholds(t *testing.T) {
	assert.GreaterOrEqual(t, fuzzy.Score("juice", "Apple Juice"), fuzzy.ConfirmationThreshold)
	assert.Less(t, fuzzy.Score("zzz", "Apple Juice"), fuzzy.ConfirmationThreshold)
	assert.True(t, fuzzy.Confident(0.8))
	assert.False(t, fuzzy.Confident(0.79))
}

func TestBest(t *testing.T) {
	names := []string{"Apple Pomace", "Apple Juice (1000ml)", "Orange Juice (1000ml)"}

	idx, score := fuzzy.Best("apple juice", names)
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 0.9, score, 1e-9)

	idx, score = fuzzy.Best("juice", names)
	assert.Equal(t, 1, idx, "ties keep the earliest name")
	assert.InDelta(t, 0.9, score, 1e-9)

	idx, score = fuzzy.Best("xyz", names)
	assert.Equal(t, 0, idx)
	assert.Zero(t, score)

	idx, _ = fuzzy.Best("anything", nil)
	assert.Equal(t, -1, idx)
}
