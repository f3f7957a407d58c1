package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/vanshika/txscreen/internal/domain"
)

// WatchlistEntry is a locally maintained sanctioned identity.
type WatchlistEntry struct {
	Name       string `json:"name"`
	NationalID string `json:"nationalId"`
	Country    string `json:"country"`
}

// Similarity thresholds on the 0..100 name score.
const (
	strongScore   = 95
	moderateScore = 85
)

// WatchlistScreener scores names against an in-process watchlist using edit
// distance. It exists for development and offline runs and honours the same
// verdict contract as Client.
type WatchlistScreener struct {
	entries  []WatchlistEntry
	names    []string
	minScore float64
}

// NewWatchlistScreener builds a screener over entries. Entries scoring below
// minScore are not matches, as with the provider's minScore filter; a
// non-positive minScore uses the Client default.
func NewWatchlistScreener(entries []WatchlistEntry, minScore int) *WatchlistScreener {
	if minScore <= 0 {
		minScore = defaultMinScore
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = cacheKey(e.Name)
	}
	return &WatchlistScreener{entries: entries, names: names, minScore: float64(minScore)}
}

// LoadWatchlist reads a JSON array of entries from path.
func LoadWatchlist(path string) ([]WatchlistEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var entries []WatchlistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode watchlist %s: %w", path, err)
	}
	return entries, nil
}

func (w *WatchlistScreener) ScreenName(ctx context.Context, name string) domain.ScreeningVerdict {
	verdict := domain.NeutralVerdict()
	if ctx.Err() != nil {
		verdict.Failed = true
		return verdict
	}

	candidate := cacheKey(name)
	if candidate == "" {
		return verdict
	}

	best := 0.0
	for _, listed := range w.names {
		score := nameScore(candidate, listed)
		if score < w.minScore {
			continue
		}
		verdict.MatchCount++
		if score > best {
			best = score
		}
	}
	if verdict.MatchCount == 0 {
		return verdict
	}

	verdict.Score = best
	switch {
	case best >= strongScore:
		verdict.Similarity = domain.SimilarityStrong
	case best >= moderateScore:
		verdict.Similarity = domain.SimilarityModerate
	default:
		verdict.Similarity = domain.SimilarityWeak
	}
	return verdict
}

// nameScore is 100 * (1 - distance/longest) over runes.
func nameScore(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(longest))
}

// Len reports how many entries are loaded.
func (w *WatchlistScreener) Len() int {
	return len(w.entries)
}
