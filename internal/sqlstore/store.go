// Package sqlstore is a SQLite implementation of the screening store, used
// for single-node deployments and local development.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/vanshika/txscreen/internal/domain"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists users, transactions and compliance checks in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates it to the current
// schema. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps pragmas and :memory: databases consistent
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser inserts user unless the account exists and returns the stored row.
func (s *Store) EnsureUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.Account == "" {
		return domain.User{}, errors.New("user account is required")
	}
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := user.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, account, currency, country, risk_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account) DO NOTHING
	`, user.ID, user.Name, user.Account, user.Currency, user.Country, user.RiskScore,
		formatTime(created), formatTime(updated))
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user %s: %w", user.Account, err)
	}
	return s.FindUserByAccount(ctx, user.Account)
}

// FindUserByAccount returns domain.ErrNotFound when no user has account.
func (s *Store) FindUserByAccount(ctx context.Context, account string) (domain.User, error) {
	var (
		u                domain.User
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, account, currency, country, risk_score, created_at, updated_at
		FROM users
		WHERE account = ?
	`, account).Scan(&u.ID, &u.Name, &u.Account, &u.Currency, &u.Country, &u.RiskScore, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", account, err)
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return u, nil
}

// TransactionExists reports whether extrID is already used.
func (s *Store) TransactionExists(ctx context.Context, extrID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE extr_id = ?`, extrID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup extrId %s: %w", extrID, err)
	}
	return n > 0, nil
}

// InsertTransaction stores tx; a taken extrId yields domain.ErrDuplicateExtrID.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" || tx.ExtrID == "" {
		return errors.New("transaction id and extrId are required")
	}
	updated := tx.UpdatedAt
	if updated.IsZero() {
		updated = tx.CreatedAt
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, extr_id, sender_name, sender_account, recipient_name, recipient_account,
			amount, currency, country, status, suspicious, suspicion_reasons,
			ofac_score, ofac_match, ofac_similarity, callback_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(extr_id) DO NOTHING
	`,
		tx.ID, tx.ExtrID, tx.Sender.Name, tx.Sender.Account, tx.Recipient.Name, tx.Recipient.Account,
		tx.Amount.String(), tx.Currency, tx.Country, string(tx.Status),
		tx.BusinessRulesChecks.Suspicious, domain.JoinReasonCodes(tx.BusinessRulesChecks.Reasons),
		tx.Screening.Score, tx.Screening.Match, string(tx.Screening.Similarity), tx.CallbackURL,
		formatTime(tx.CreatedAt), formatTime(updated),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateExtrID
		}
		return fmt.Errorf("insert transaction %s: %w", tx.ExtrID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ExtrID, err)
	}
	if n == 0 {
		return domain.ErrDuplicateExtrID
	}
	return nil
}

const transactionColumns = `
	id, extr_id, sender_name, sender_account, recipient_name, recipient_account,
	amount, currency, country, status, suspicious, suspicion_reasons,
	ofac_score, ofac_match, ofac_similarity, callback_url, created_at, updated_at,
	async_outcome, async_score, async_match, async_similarity, async_notes, async_reviewed_at
`

// RecentTransactions returns at most limit transactions sent from account, newest first.
func (s *Store) RecentTransactions(ctx context.Context, account string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sender_account = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions for %s: %w", account, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("recent transactions for %s: %w", account, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// GetTransaction loads a transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// CompareAndSetStatus moves the transaction to next only while its stored
// status equals expected.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, review domain.SecondaryReview) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, async_outcome = ?, async_score = ?, async_match = ?,
		    async_similarity = ?, async_notes = ?, async_reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(next), review.Outcome, review.Score, review.Match,
		string(review.Similarity), review.Notes, formatTime(review.ReviewedAt), formatTime(review.ReviewedAt),
		id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStatusConflict
}

// AttachSecondaryReview stores the review report and leaves the status as is.
func (s *Store) AttachSecondaryReview(ctx context.Context, id string, review domain.SecondaryReview) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET async_outcome = ?, async_score = ?, async_match = ?,
		    async_similarity = ?, async_notes = ?, async_reviewed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		review.Outcome, review.Score, review.Match,
		string(review.Similarity), review.Notes, formatTime(review.ReviewedAt), formatTime(review.ReviewedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("attach review to %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach review to %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordComplianceCheck stores an audit row for an existing transaction.
func (s *Store) RecordComplianceCheck(ctx context.Context, check domain.ComplianceCheck) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_checks (id, transaction_id, check_type, result, notes, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM transactions WHERE id = ?)
	`, check.ID, check.TransactionID, check.CheckType, check.Result, check.Notes,
		formatTime(check.CreatedAt), check.TransactionID)
	if err != nil {
		return fmt.Errorf("record compliance check for %s: %w", check.TransactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record compliance check for %s: %w", check.TransactionID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ComplianceChecks lists the audit trail of a transaction, oldest first.
func (s *Store) ComplianceChecks(ctx context.Context, transactionID string) ([]domain.ComplianceCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, check_type, result, notes, created_at
		FROM compliance_checks
		WHERE transaction_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("compliance checks for %s: %w", transactionID, err)
	}
	defer rows.Close()

	var out []domain.ComplianceCheck
	for rows.Next() {
		c := domain.ComplianceCheck{TransactionID: transactionID}
		var created string
		if err := rows.Scan(&c.ID, &c.CheckType, &c.Result, &c.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan compliance check: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		tx                          domain.Transaction
		amount, status, reasons     string
		similarity                  string
		created, updated            string
		asyncOutcome                sql.NullString
		asyncScore                  float64
		asyncMatch                  bool
		asyncSimilarity, asyncNotes string
		asyncReviewedAt             string
	)
	err := row.Scan(
		&tx.ID, &tx.ExtrID, &tx.Sender.Name, &tx.Sender.Account, &tx.Recipient.Name, &tx.Recipient.Account,
		&amount, &tx.Currency, &tx.Country, &status, &tx.BusinessRulesChecks.Suspicious, &reasons,
		&tx.Screening.Score, &tx.Screening.Match, &similarity, &tx.CallbackURL, &created, &updated,
		&asyncOutcome, &asyncScore, &asyncMatch, &asyncSimilarity, &asyncNotes, &asyncReviewedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: invalid amount: %w", tx.ID, err)
	}
	tx.Status = domain.Status(status)
	tx.BusinessRulesChecks.Reasons = domain.ParseReasonCodes(reasons)
	tx.Screening.Similarity = domain.ParseSimilarity(similarity)
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(updated)

	if asyncOutcome.Valid {
		tx.SecondaryReview = &domain.SecondaryReview{
			Outcome:    asyncOutcome.String,
			Score:      asyncScore,
			Match:      asyncMatch,
			Similarity: domain.ParseSimilarity(asyncSimilarity),
			Notes:      asyncNotes,
			ReviewedAt: parseTime(asyncReviewedAt),
		}
	}
	return tx, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
