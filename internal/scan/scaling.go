// Package scan runs the per-account article scan: embedding similarity gate,
// relevance classification and persistence of accepted articles.
package scan

import "math"

// Scaling sizes the search space of a task from its target count.
type Scaling struct {
	Keywords     int
	AccountLimit int
	ArticleLimit int
}

// ScalingFor returns the scaling tier for target.
func ScalingFor(target int) Scaling {
	switch {
	case target <= 50:
		return Scaling{Keywords: 10, AccountLimit: 20, ArticleLimit: 20}
	case target <= 200:
		return Scaling{Keywords: 15, AccountLimit: 30, ArticleLimit: 30}
	default:
		return Scaling{Keywords: 20, AccountLimit: 50, ArticleLimit: 50}
	}
}

const (
	minScanCeiling = 1000
	maxScanCeiling = 100000
	scanPerTarget  = 50
)

// ScanCeiling bounds the number of articles examined for target.
func ScanCeiling(target int) int {
	return min(max(target*scanPerTarget, minScanCeiling), maxScanCeiling)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
// Extra elements of the longer vector are ignored.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
