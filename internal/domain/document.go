package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionDocument is the external JSON shape of a transaction, shared by
// the HTTP API and callback notifications.
type TransactionDocument struct {
	ID                  string               `json:"id"`
	ExtrID              string               `json:"extrId"`
	Sender              PartyDocument        `json:"sender"`
	Recipient           PartyDocument        `json:"recipient"`
	Amount              string               `json:"amount"`
	Currency            string               `json:"currency"`
	Country             string               `json:"country"`
	Status              Status               `json:"status"`
	BusinessRulesChecks RulesDocument        `json:"businessRulesChecks"`
	OFAC                ScreeningDocument    `json:"ofac"`
	AsyncReport         *AsyncReportDocument `json:"asyncReport,omitempty"`
	CallbackURL         string               `json:"callbackUrl"`
	CreatedAt           string               `json:"createdAt"`
	UpdatedAt           string               `json:"updatedAt,omitempty"`
}

// PartyDocument is a party in its JSON shape.
type PartyDocument struct {
	Name    string `json:"name"`
	Account string `json:"account"`
}

// RulesDocument carries the rule verdict.
type RulesDocument struct {
	Suspicious       bool         `json:"suspicious"`
	SuspicionReasons string       `json:"suspicionReasons"`
	Reasons          []ReasonCode `json:"reasons"`
}

// ScreeningDocument carries the sanctions result.
type ScreeningDocument struct {
	Score      float64    `json:"score"`
	Match      bool       `json:"match"`
	Similarity Similarity `json:"similarity"`
}

// AsyncReportDocument carries the secondary review.
type AsyncReportDocument struct {
	Outcome    string     `json:"outcome"`
	Score      float64    `json:"score"`
	Match      bool       `json:"match"`
	Similarity Similarity `json:"similarity"`
	Notes      string     `json:"notes"`
	ReviewedAt string     `json:"reviewedAt"`
}

// NewTransactionDocument renders tx for external consumers.
func NewTransactionDocument(tx Transaction) TransactionDocument {
	reasons := tx.BusinessRulesChecks.Reasons
	if reasons == nil {
		reasons = []ReasonCode{}
	}
	doc := TransactionDocument{
		ID:        tx.ID,
		ExtrID:    tx.ExtrID,
		Sender:    PartyDocument(tx.Sender),
		Recipient: PartyDocument(tx.Recipient),
		Amount:    tx.Amount.StringFixed(2),
		Currency:  tx.Currency,
		Country:   tx.Country,
		Status:    tx.Status,
		BusinessRulesChecks: RulesDocument{
			Suspicious:       tx.BusinessRulesChecks.Suspicious,
			SuspicionReasons: JoinReasonCodes(reasons),
			Reasons:          reasons,
		},
		OFAC: ScreeningDocument{
			Score:      tx.Screening.Score,
			Match:      tx.Screening.Match,
			Similarity: tx.Screening.Similarity,
		},
		CallbackURL: tx.CallbackURL,
		CreatedAt:   formatTime(tx.CreatedAt),
		UpdatedAt:   formatTime(tx.UpdatedAt),
	}
	if r := tx.SecondaryReview; r != nil {
		doc.AsyncReport = &AsyncReportDocument{
			Outcome:    r.Outcome,
			Score:      r.Score,
			Match:      r.Match,
			Similarity: r.Similarity,
			Notes:      r.Notes,
			ReviewedAt: formatTime(r.ReviewedAt),
		}
	}
	return doc
}

// Transaction parses the document back into a Transaction.
func (d TransactionDocument) Transaction() (Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: invalid amount %q: %w", d.ExtrID, d.Amount, err)
	}
	created, err := parseTime(d.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: invalid createdAt: %w", d.ExtrID, err)
	}
	updated, err := parseTime(d.UpdatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: invalid updatedAt: %w", d.ExtrID, err)
	}

	reasons := d.BusinessRulesChecks.Reasons
	if len(reasons) == 0 {
		reasons = ParseReasonCodes(d.BusinessRulesChecks.SuspicionReasons)
	}
	tx := Transaction{
		ID:        d.ID,
		ExtrID:    d.ExtrID,
		Sender:    Party(d.Sender),
		Recipient: Party(d.Recipient),
		Amount:    amount,
		Currency:  d.Currency,
		Country:   d.Country,
		Status:    d.Status,
		BusinessRulesChecks: BusinessRulesChecks{
			Suspicious: d.BusinessRulesChecks.Suspicious,
			Reasons:    reasons,
		},
		Screening: ScreeningResult{
			Score:      d.OFAC.Score,
			Match:      d.OFAC.Match,
			Similarity: ParseSimilarity(string(d.OFAC.Similarity)),
		},
		CallbackURL: d.CallbackURL,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	if r := d.AsyncReport; r != nil {
		reviewed, err := parseTime(r.ReviewedAt)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction %s: invalid asyncReport.reviewedAt: %w", d.ExtrID, err)
		}
		tx.SecondaryReview = &SecondaryReview{
			Outcome:    r.Outcome,
			Score:      r.Score,
			Match:      r.Match,
			Similarity: ParseSimilarity(string(r.Similarity)),
			Notes:      r.Notes,
			ReviewedAt: reviewed,
		}
	}
	return tx, nil
}

// UserDocument is the external JSON shape of a user.
type UserDocument struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Account   string  `json:"account"`
	Currency  string  `json:"currency"`
	Country   string  `json:"country"`
	RiskScore float64 `json:"riskScore"`
	CreatedAt string  `json:"createdAt"`
}

// NewUserDocument renders u for external consumers.
func NewUserDocument(u User) UserDocument {
	return UserDocument{
		ID:        u.ID,
		Name:      u.Name,
		Account:   u.Account,
		Currency:  u.Currency,
		Country:   u.Country,
		RiskScore: u.RiskScore,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// User parses the document back into a User.
func (d UserDocument) User() (User, error) {
	created, err := parseTime(d.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("user %s: invalid createdAt: %w", d.Account, err)
	}
	return User{
		ID:        d.ID,
		Name:      d.Name,
		Account:   d.Account,
		Currency:  d.Currency,
		Country:   d.Country,
		RiskScore: d.RiskScore,
		CreatedAt: created,
		UpdatedAt: created,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
