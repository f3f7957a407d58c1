package domain

import "strings"

// Similarity is the provider's qualitative match strength, always lower case.
type Similarity string

const (
	SimilarityWeak     Similarity = "weak"
	SimilarityModerate Similarity = "moderate"
	SimilarityStrong   Similarity = "strong"
)

// ParseSimilarity normalizes a provider string ("Strong", "STRONG", " strong ")
// to the canonical value. Anything unrecognised is treated as weak.
func ParseSimilarity(raw string) Similarity {
	switch Similarity(strings.ToLower(strings.TrimSpace(raw))) {
	case SimilarityStrong:
		return SimilarityStrong
	case SimilarityModerate:
		return SimilarityModerate
	default:
		return SimilarityWeak
	}
}

// ScreeningVerdict is the normalized sanctions check result.
// Failed marks a fail-open default produced when the provider was unusable.
type ScreeningVerdict struct {
	Score      float64
	Similarity Similarity
	MatchCount int
	Failed     bool
}

// Match is true only for a strong similarity.
func (v ScreeningVerdict) Match() bool {
	return v.Similarity == SimilarityStrong
}

// NeutralVerdict is the fail-open default.
func NeutralVerdict() ScreeningVerdict {
	return ScreeningVerdict{Score: 0, Similarity: SimilarityWeak, MatchCount: 0}
}

// Result converts the verdict into the form persisted on a transaction.
func (v ScreeningVerdict) Result() ScreeningResult {
	return ScreeningResult{
		Score:      v.Score,
		Match:      v.Match(),
		Similarity: v.Similarity,
	}
}
