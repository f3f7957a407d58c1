// Package rules implements the synchronous business-rule checks applied to a
// candidate transaction and the sender's recent history.
package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
)

// Config holds the rule thresholds.
type Config struct {
	HistorySize           int
	LargeAmount           decimal.Decimal
	HighRiskCountries     []string
	ShortInterval         time.Duration
	SimilarAmountDelta    decimal.Decimal
	SimilarAmountWindow   time.Duration
	MaxDistinctRecipients int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		HistorySize:           5,
		LargeAmount:           decimal.NewFromInt(5000),
		HighRiskCountries:     []string{"KP", "IR", "SY", "North Korea", "Iran", "Syria"},
		ShortInterval:         10 * time.Minute,
		SimilarAmountDelta:    decimal.NewFromInt(100),
		SimilarAmountWindow:   10 * time.Minute,
		MaxDistinctRecipients: 3,
	}
}

// Evaluator applies the rule set. It holds no mutable state and is safe for
// concurrent use.
type Evaluator struct {
	cfg       Config
	highRisks map[string]struct{}
}

// NewEvaluator builds an Evaluator, filling zero thresholds from DefaultConfig.
func NewEvaluator(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.LargeAmount.IsZero() {
		cfg.LargeAmount = def.LargeAmount
	}
	if cfg.HighRiskCountries == nil {
		cfg.HighRiskCountries = def.HighRiskCountries
	}
	if cfg.ShortInterval <= 0 {
		cfg.ShortInterval = def.ShortInterval
	}
	if cfg.SimilarAmountDelta.IsZero() {
		cfg.SimilarAmountDelta = def.SimilarAmountDelta
	}
	if cfg.SimilarAmountWindow <= 0 {
		cfg.SimilarAmountWindow = def.SimilarAmountWindow
	}
	if cfg.MaxDistinctRecipients <= 0 {
		cfg.MaxDistinctRecipients = def.MaxDistinctRecipients
	}

	highRisks := make(map[string]struct{}, len(cfg.HighRiskCountries))
	for _, c := range cfg.HighRiskCountries {
		if c = normalizeCountry(c); c != "" {
			highRisks[c] = struct{}{}
		}
	}
	return &Evaluator{cfg: cfg, highRisks: highRisks}
}

// HistorySize is how many prior transactions the evaluator wants to see.
func (e *Evaluator) HistorySize() int {
	return e.cfg.HistorySize
}

type amountAt struct {
	amount decimal.Decimal
	at     time.Time
}

// Evaluate inspects candidate against history. history may arrive in any order
// and is not modified.
func (e *Evaluator) Evaluate(candidate domain.Transaction, history []domain.Transaction) domain.BusinessRulesChecks {
	var reasons reasonSet

	if candidate.Amount.GreaterThan(e.cfg.LargeAmount) {
		reasons.add(domain.ReasonLargeTransaction)
	}
	if _, ok := e.highRisks[normalizeCountry(candidate.Country)]; ok {
		reasons.add(domain.ReasonHighRiskCountry)
	}

	sorted := make([]domain.Transaction, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var lastAt *time.Time
	recipients := make(map[string]struct{})
	seen := make([]amountAt, 0, len(sorted))

	for i := range sorted {
		tx := sorted[i]

		if lastAt != nil && tx.CreatedAt.Sub(*lastAt) < e.cfg.ShortInterval {
			reasons.add(domain.ReasonRapidShortInterval)
		}
		at := tx.CreatedAt
		lastAt = &at

		recipients[tx.Recipient.Account] = struct{}{}

		for _, prev := range seen {
			if tx.Amount.Sub(prev.amount).Abs().LessThanOrEqual(e.cfg.SimilarAmountDelta) &&
				tx.CreatedAt.Sub(prev.at) < e.cfg.SimilarAmountWindow {
				reasons.add(domain.ReasonRapidSameAccount)
				break
			}
		}
		seen = append(seen, amountAt{amount: tx.Amount, at: tx.CreatedAt})
	}

	if len(recipients) > e.cfg.MaxDistinctRecipients {
		reasons.add(domain.ReasonRapidDiffAccounts)
	}

	return domain.BusinessRulesChecks{
		Suspicious: len(reasons) > 0,
		Reasons:    []domain.ReasonCode(reasons),
	}
}

// reasonSet keeps first-fired order and drops duplicates.
type reasonSet []domain.ReasonCode

func (s *reasonSet) add(r domain.ReasonCode) {
	for _, existing := range *s {
		if existing == r {
			return
		}
	}
	*s = append(*s, r)
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
