package service

import (
	"context"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/review"
)

// Store is the persistence contract of the screening service. Both the graph
// repository and the SQLite store implement it.
type Store interface {
	// EnsureUser creates user unless one with the same account exists and
	// returns the stored record.
	EnsureUser(ctx context.Context, user domain.User) (domain.User, error)
	FindUserByAccount(ctx context.Context, account string) (domain.User, error)
	TransactionExists(ctx context.Context, extrID string) (bool, error)
	// RecentTransactions returns at most limit transactions sent from account,
	// newest first.
	RecentTransactions(ctx context.Context, account string, limit int) ([]domain.Transaction, error)
	// InsertTransaction fails with domain.ErrDuplicateExtrID when the extrId
	// is taken, atomically with the insert.
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	RecordComplianceCheck(ctx context.Context, check domain.ComplianceCheck) error
	Ping(ctx context.Context) error

	review.Store
}

// ReviewScheduler hands a created transaction to the secondary reviewer.
type ReviewScheduler interface {
	Schedule(req review.Request) error
}
