package levenshtein_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailguard/internal/levenshtein"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		s, t string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"", "abc", 3},
		{"gmail.com", "gmail.com", 0},
		{"gmial.com", "gmail.com", 2},
		{"gmal.com", "gmail.com", 1},
		{"gmailll.com", "gmail.com", 2},
		{"yahoo.com", "gmail.com", 5},
		{"kitten", "sitting", 3},
		{"münchen.de", "munchen.de", 1},
	}
	for _, tt := range tests {
		t.Run(tt.s+"->"+tt.t, func(t *testing.T) {
			assert.Equal(t, tt.want, levenshtein.Distance(tt.s, tt.t))
			assert.Equal(t, tt.want, levenshtein.Distance(tt.t, tt.s), "symmetric")
		})
	}
}

func TestWithin(t *testing.T) {
	d, ok := levenshtein.Within("kitten", "sitting", 3)
	assert.True(t, ok)
	assert.Equal(t, 3, d)

	_, ok = levenshtein.Within("kitten", "sitting", 2)
	assert.False(t, ok)

	_, ok = levenshtein.Within("a", "abcdef", 2)
	assert.False(t, ok, "length difference alone exceeds the limit")

	d, ok = levenshtein.Within("", "ab", 2)
	assert.True(t, ok)
	assert.Equal(t, 2, d)
}

func TestClosest(t *testing.T) {
	candidates := []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}

	tests := []struct {
		name     string
		in       string
		want     string
		wantDist int
		wantOK   bool
	}{
		{"transposition", "gmial.com", "gmail.com", 2, true},
		{"missing letter", "hotmal.com", "hotmail.com", 1, true},
		{"exact match", "yahoo.com", "", 0, false},
		{"too far", "example.org", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, d, ok := levenshtein.Closest(tt.in, candidates, 2)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDist, d)
		})
	}
}

func TestClosest_TieKeepsFirst(t *testing.T) {
	got, d, ok := levenshtein.Closest("bbb", []string{"bba", "bbc"}, 1)
	assert.True(t, ok)
	assert.Equal(t, "bba", got)
	assert.Equal(t, 1, d)
}
