package knowledge

import (
	"math"
	"strings"
	"time"
)

const (
	weightSimilarity = 0.6
	weightKeyword    = 0.3
	weightRecency    = 0.1

	// RecencyHalfLife is the age at which RecencyScore reaches 0.5.
	RecencyHalfLife = 30 * 24 * time.Hour
)

// HybridScore blends vector similarity, keyword overlap and recency, each in [0,1].
func HybridScore(similarity, keyword, recency float64) float64 {
	return weightSimilarity*similarity + weightKeyword*keyword + weightRecency*recency
}

// KeywordScore is the fraction of query keywords found in text.
func KeywordScore(query, text string) float64 {
	terms := Keywords(query)
	if len(terms) == 0 {
		return 0
	}
	folded := foldCase(text)
	found := 0
	for _, term := range terms {
		if strings.Contains(folded, term) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

// RecencyScore decays from 1 at age zero with RecencyHalfLife. Negative ages count as new.
func RecencyScore(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(RecencyHalfLife))
}

// Cosine returns the cosine similarity of a and b, or 0 when lengths differ
// or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
