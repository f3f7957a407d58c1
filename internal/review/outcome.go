// Package review runs the asynchronous secondary classification of screened
// transactions and applies its single permitted status transition.
package review

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/vanshika/txscreen/internal/domain"
)

// Outcome is the result of a secondary classification.
type Outcome string

const (
	OutcomeClear     Outcome = "clear"
	OutcomeHighRisk  Outcome = "high_risk"
	OutcomeUncertain Outcome = "uncertain"
)

var outcomes = []Outcome{OutcomeClear, OutcomeHighRisk, OutcomeUncertain}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeClear, OutcomeHighRisk, OutcomeUncertain:
		return true
	}
	return false
}

// NextStatus is the transition table of the secondary review.
//
//	uncertain: pending|flagged -> approved
//	high_risk: any -> rejected
//	clear:     unchanged
func NextStatus(current domain.Status, outcome Outcome) domain.Status {
	switch outcome {
	case OutcomeUncertain:
		if current == domain.StatusPending || current == domain.StatusFlagged {
			return domain.StatusApproved
		}
	case OutcomeHighRisk:
		return domain.StatusRejected
	}
	return current
}

// CheckResult maps an outcome to the compliance audit result.
func (o Outcome) CheckResult() string {
	switch o {
	case OutcomeHighRisk:
		return domain.CheckResultHighRisk
	case OutcomeUncertain:
		return domain.CheckResultFlagged
	default:
		return domain.CheckResultClear
	}
}

// Report renders the outcome as the secondary review stored on a transaction.
func (o Outcome) Report(at time.Time) domain.SecondaryReview {
	r := domain.SecondaryReview{Outcome: string(o), ReviewedAt: at.UTC()}
	switch o {
	case OutcomeHighRisk:
		r.Score, r.Similarity = 90, domain.SimilarityStrong
	case OutcomeUncertain:
		r.Score, r.Similarity = 50, domain.SimilarityModerate
	default:
		r.Score, r.Similarity = 10, domain.SimilarityWeak
	}
	r.Match = r.Similarity == domain.SimilarityStrong
	r.Notes = fmt.Sprintf("secondary review outcome %s", o)
	return r
}

// Classifier produces a secondary outcome for a transaction.
type Classifier interface {
	Classify(ctx context.Context, tx domain.Transaction) (Outcome, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, tx domain.Transaction) (Outcome, error)

func (f ClassifierFunc) Classify(ctx context.Context, tx domain.Transaction) (Outcome, error) {
	return f(ctx, tx)
}

// RandomClassifier draws uniformly from the three outcomes. It stands in for a
// real secondary model.
type RandomClassifier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomClassifier uses rng, or a time-seeded source when rng is nil.
func NewRandomClassifier(rng *rand.Rand) *RandomClassifier {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomClassifier{rng: rng}
}

func (c *RandomClassifier) Classify(ctx context.Context, _ domain.Transaction) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return outcomes[c.rng.Intn(len(outcomes))], nil
}
