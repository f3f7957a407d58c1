package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a screened transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFlagged  Status = "flagged"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFlagged, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Party identifies one side of a transfer.
type Party struct {
	Name    string
	Account string
}

// BusinessRulesChecks is the synchronous rule verdict.
type BusinessRulesChecks struct {
	Suspicious bool
	Reasons    []ReasonCode
}

// ScreeningResult is the sanctions outcome stored on the transaction.
type ScreeningResult struct {
	Score      float64
	Match      bool
	Similarity Similarity
}

// SecondaryReview records the asynchronous re-classification.
type SecondaryReview struct {
	Outcome    string
	Score      float64
	Match      bool
	Similarity Similarity
	Notes      string
	ReviewedAt time.Time
}

// Transaction is the screened payment and the principal record of the system.
type Transaction struct {
	ID                  string
	ExtrID              string
	Sender              Party
	Recipient           Party
	Amount              decimal.Decimal
	Currency            string
	Country             string
	Status              Status
	BusinessRulesChecks BusinessRulesChecks
	Screening           ScreeningResult
	SecondaryReview     *SecondaryReview
	CallbackURL         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ComplianceCheck is an audit entry for a single sync or async check.
type ComplianceCheck struct {
	ID            string
	TransactionID string
	CheckType     string
	Result        string
	Notes         string
	CreatedAt     time.Time
}

// Compliance check types and results.
const (
	CheckTypeSync  = "sync"
	CheckTypeAsync = "async"

	CheckResultClear    = "clear"
	CheckResultFlagged  = "flagged"
	CheckResultHighRisk = "high_risk"
)
