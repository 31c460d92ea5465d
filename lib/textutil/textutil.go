package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return true
		}
	}
	return false
}

// BestMatch returns the index of the candidate most similar to target by
// Jaro-Winkler distance on normalized names, or -1 if no candidate reaches
// minSimilarity. A candidate containing target always matches.
func BestMatch(target string, candidates []string, minSimilarity float64) int {
	normalized := NormalizeName(target)
	if normalized == "" {
		return -1
	}

	best := -1
	bestSimilarity := minSimilarity
	for i, candidate := range candidates {
		name := NormalizeName(candidate)
		if name == "" {
			continue
		}
		if strings.Contains(name, normalized) {
			return i
		}
		similarity := matchr.JaroWinkler(normalized, name, false)
		if similarity >= bestSimilarity && (best < 0 || similarity > bestSimilarity) {
			best = i
			bestSimilarity = similarity
		}
	}
	return best
}
