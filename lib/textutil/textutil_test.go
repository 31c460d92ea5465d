package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "bestbooksof2024", NormalizeName("  Best Books\tof 2024\n"))
	require.Equal(t, "", NormalizeName(" \n"))
}

func TestMatchName(t *testing.T) {
	require.True(t, MatchName("Books that made me cry", []string{"made me"}))
	require.False(t, MatchName("Books that made me cry", []string{"laugh"}))
}

func TestBestMatch(t *testing.T) {
	candidates := []string{
		"What are your favorite books of all time?",
		"Which books made you cry?",
		"Favorite science fiction books",
	}

	testCases := []struct {
		target   string
		expected int
	}{
		{target: "made you cry", expected: 1},
		{target: "favorite science fiction", expected: 2},
		{target: "Which boks made you cry?", expected: 1},
		{target: "zzzz", expected: -1},
		{target: "", expected: -1},
	}

	for _, test := range testCases {
		t.Run(test.target, func(t *testing.T) {
			require.Equal(t, test.expected, BestMatch(test.target, candidates, 0.85))
		})
	}
}
