package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/review"
	"github.com/vanshika/txscreen/internal/rules"
	"github.com/vanshika/txscreen/internal/screening"
)

// ScreeningService runs the synchronous screening pipeline and hands every
// created transaction to the secondary reviewer.
type ScreeningService struct {
	store    Store
	rules    *rules.Evaluator
	screener screening.Screener
	reviews  ReviewScheduler
	policy   SanctionsPolicy
	logger   *slog.Logger
	nowFn    func() time.Time
	newID    func() string
}

// Options carries the optional collaborators of NewScreeningService.
type Options struct {
	Policy  SanctionsPolicy
	Reviews ReviewScheduler
	Logger  *slog.Logger
}

// NewScreeningService constructs a ScreeningService.
func NewScreeningService(store Store, evaluator *rules.Evaluator, screener screening.Screener, opts Options) *ScreeningService {
	if evaluator == nil {
		evaluator = rules.NewEvaluator(rules.DefaultConfig())
	}
	if opts.Policy == "" {
		opts.Policy = PolicyIgnore
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ScreeningService{
		store:    store,
		rules:    evaluator,
		screener: screener,
		reviews:  opts.Reviews,
		policy:   opts.Policy,
		logger:   opts.Logger.With("component", "screening-service"),
		nowFn:    time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *ScreeningService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Screen validates in, classifies it and persists the resulting transaction.
// Validation failures are *ValidationError; a reused extrId is
// domain.ErrDuplicateExtrID. Both are returned before anything is written.
func (s *ScreeningService) Screen(ctx context.Context, in ScreenInput) (domain.Transaction, error) {
	in, err := in.Validate()
	if err != nil {
		return domain.Transaction{}, err
	}

	exists, err := s.store.TransactionExists(ctx, in.ExtrID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("check extrId %s: %w", in.ExtrID, err)
	}
	if exists {
		return domain.Transaction{}, domain.ErrDuplicateExtrID
	}

	now := s.nowFn().UTC()
	sender, err := s.store.EnsureUser(ctx, domain.User{
		ID:        s.newID(),
		Name:      in.Name,
		Account:   in.Account,
		Currency:  in.Currency,
		Country:   in.Country,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ensure sender %s: %w", in.Account, err)
	}

	history, err := s.store.RecentTransactions(ctx, sender.Account, s.rules.HistorySize())
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load history for %s: %w", sender.Account, err)
	}

	tx := domain.Transaction{
		ID:          s.newID(),
		ExtrID:      in.ExtrID,
		Sender:      domain.Party{Name: in.Name, Account: sender.Account},
		Recipient:   in.recipient(),
		Amount:      in.Amount,
		Currency:    in.Currency,
		Country:     in.Country,
		CallbackURL: in.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	checks := s.rules.Evaluate(tx, history)
	verdict := s.screener.ScreenName(ctx, tx.Recipient.Name)
	tx.Status, tx.Screening = Assemble(checks, verdict, s.policy)
	tx.BusinessRulesChecks = checks

	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrDuplicateExtrID) {
			return domain.Transaction{}, domain.ErrDuplicateExtrID
		}
		return domain.Transaction{}, fmt.Errorf("insert transaction %s: %w", tx.ExtrID, err)
	}

	s.logger.Info("transaction screened",
		"transaction_id", tx.ID,
		"extr_id", tx.ExtrID,
		"status", tx.Status,
		"reasons", domain.JoinReasonCodes(checks.Reasons),
		"sanctions_score", verdict.Score,
		"screening_failed", verdict.Failed,
	)

	check := domain.ComplianceCheck{
		ID:            s.newID(),
		TransactionID: tx.ID,
		CheckType:     domain.CheckTypeSync,
		Result:        syncCheckResult(tx.Status),
		Notes:         syncCheckNotes(checks, verdict),
		CreatedAt:     now,
	}
	if err := s.store.RecordComplianceCheck(ctx, check); err != nil {
		s.logger.Warn("record compliance check failed", "transaction_id", tx.ID, "error", err)
	}

	s.scheduleReview(tx)
	return tx, nil
}

func (s *ScreeningService) scheduleReview(tx domain.Transaction) {
	if s.reviews == nil {
		return
	}
	err := s.reviews.Schedule(review.Request{TransactionID: tx.ID, ObservedStatus: tx.Status})
	if err != nil {
		s.logger.Warn("secondary review not scheduled", "transaction_id", tx.ID, "error", err)
	}
}

// GetTransaction returns a transaction by id.
func (s *ScreeningService) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, invalid("id", "transaction id is required")
	}
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// GetUser returns a sender by account with their latest transactions.
func (s *ScreeningService) GetUser(ctx context.Context, account string) (UserProfile, error) {
	account = sanitizeString(account)
	if account == "" {
		return UserProfile{}, invalid("account", "account is required")
	}
	user, err := s.store.FindUserByAccount(ctx, account)
	if err != nil {
		return UserProfile{}, fmt.Errorf("get user %s: %w", account, err)
	}
	recent, err := s.store.RecentTransactions(ctx, account, s.rules.HistorySize())
	if err != nil {
		return UserProfile{}, fmt.Errorf("load transactions for %s: %w", account, err)
	}
	return UserProfile{User: user, Recent: recent}, nil
}

// Ping probes the store.
func (s *ScreeningService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
