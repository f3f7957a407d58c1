package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/graph"
)

// Repository encapsulates graph persistence operations.
type Repository struct {
	client graph.Client
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{client: client}
}

// EnsureSchema creates the uniqueness constraints the repository relies on.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaCypher {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply schema %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// EnsureUser merges a user node on account and returns the stored user.
func (r *Repository) EnsureUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.Account == "" {
		return domain.User{}, errors.New("user account is required")
	}

	params := map[string]any{
		"account": user.Account,
		"props":   userProperties(user),
	}
	res, err := r.client.ExecuteWrite(ctx, ensureUserCypher, params)
	if errors.Is(err, graph.ErrConstraintViolation) {
		// lost a concurrent create for the same account
		return r.FindUserByAccount(ctx, user.Account)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user %s: %w", user.Account, err)
	}
	if len(res.Records) == 0 {
		return domain.User{}, fmt.Errorf("ensure user %s: no record returned", user.Account)
	}
	return decodeUser(res.Records[0]), nil
}

// FindUserByAccount returns domain.ErrNotFound when no user has account.
func (r *Repository) FindUserByAccount(ctx context.Context, account string) (domain.User, error) {
	res, err := r.client.ExecuteRead(ctx, findUserCypher, map[string]any{"account": account})
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", account, err)
	}
	if len(res.Records) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return decodeUser(res.Records[0]), nil
}

// TransactionExists reports whether extrID is already used.
func (r *Repository) TransactionExists(ctx context.Context, extrID string) (bool, error) {
	res, err := r.client.ExecuteRead(ctx, transactionExistsCypher, map[string]any{"extrId": extrID})
	if err != nil {
		return false, fmt.Errorf("lookup extrId %s: %w", extrID, err)
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	found, _ := res.Records[0]["found"].(bool)
	return found, nil
}

// RecentTransactions returns the newest transactions sent from account.
func (r *Repository) RecentTransactions(ctx context.Context, account string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 5
	}
	params := map[string]any{
		"account": account,
		"limit":   int64(limit),
	}
	res, err := r.client.ExecuteRead(ctx, recentTransactionsCypher, params)
	if err != nil {
		return nil, fmt.Errorf("recent transactions for %s: %w", account, err)
	}

	txs := make([]domain.Transaction, 0, len(res.Records))
	for _, record := range res.Records {
		tx, err := decodeTransaction(record["tx"])
		if err != nil {
			return nil, fmt.Errorf("recent transactions for %s: %w", account, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// InsertTransaction creates the transaction and its sender/recipient edges. The
// MERGE on extrId makes the existence check and the create a single step.
func (r *Repository) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" || tx.ExtrID == "" {
		return errors.New("transaction id and extrId are required")
	}
	if tx.Sender.Account == "" {
		return errors.New("sender account is required")
	}

	params := map[string]any{
		"transactionId":    tx.ID,
		"extrId":           tx.ExtrID,
		"senderAccount":    tx.Sender.Account,
		"senderName":       tx.Sender.Name,
		"recipientAccount": tx.Recipient.Account,
		"recipientName":    tx.Recipient.Name,
		"createdAt":        formatTime(tx.CreatedAt),
		"props":            transactionProperties(tx),
	}

	res, err := r.client.ExecuteWrite(ctx, insertTransactionCypher, params)
	if errors.Is(err, graph.ErrConstraintViolation) {
		return domain.ErrDuplicateExtrID
	}
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ExtrID, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("insert transaction %s: no record returned", tx.ExtrID)
	}
	if created, _ := res.Records[0]["created"].(bool); !created {
		return domain.ErrDuplicateExtrID
	}
	return nil
}

// GetTransaction loads a transaction by id.
func (r *Repository) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	res, err := r.client.ExecuteRead(ctx, getTransactionCypher, map[string]any{"transactionId": id})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return decodeTransaction(res.Records[0]["tx"])
}

// CompareAndSetStatus moves the transaction to next only while its stored
// status equals expected. The node is write-locked before the comparison.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, review domain.SecondaryReview) error {
	params := map[string]any{
		"transactionId": id,
		"expected":      string(expected),
		"props":         reviewProperties(next, review),
	}
	res, err := r.client.ExecuteWrite(ctx, compareAndSetStatusCypher, params)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return domain.ErrNotFound
	}
	if matched, _ := res.Records[0]["matched"].(bool); !matched {
		return domain.ErrStatusConflict
	}
	return nil
}

// AttachSecondaryReview stores the review report and leaves the status as is.
func (r *Repository) AttachSecondaryReview(ctx context.Context, id string, review domain.SecondaryReview) error {
	params := map[string]any{
		"transactionId": id,
		"props":         secondaryReviewProperties(review),
	}
	res, err := r.client.ExecuteWrite(ctx, attachSecondaryReviewCypher, params)
	if err != nil {
		return fmt.Errorf("attach review to %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordComplianceCheck attaches an audit node to the transaction.
func (r *Repository) RecordComplianceCheck(ctx context.Context, check domain.ComplianceCheck) error {
	params := map[string]any{
		"transactionId": check.TransactionID,
		"props": map[string]any{
			"checkId":   check.ID,
			"checkType": check.CheckType,
			"result":    check.Result,
			"notes":     check.Notes,
			"createdAt": formatTime(check.CreatedAt),
		},
	}
	res, err := r.client.ExecuteWrite(ctx, recordComplianceCheckCypher, params)
	if err != nil {
		return fmt.Errorf("record compliance check for %s: %w", check.TransactionID, err)
	}
	if len(res.Records) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ComplianceChecks lists the audit trail of a transaction, oldest first.
func (r *Repository) ComplianceChecks(ctx context.Context, transactionID string) ([]domain.ComplianceCheck, error) {
	res, err := r.client.ExecuteRead(ctx, complianceChecksCypher, map[string]any{"transactionId": transactionID})
	if err != nil {
		return nil, fmt.Errorf("compliance checks for %s: %w", transactionID, err)
	}
	checks := make([]domain.ComplianceCheck, 0, len(res.Records))
	for _, record := range res.Records {
		check := domain.ComplianceCheck{
			ID:            toString(record["checkId"]),
			TransactionID: transactionID,
			CheckType:     toString(record["checkType"]),
			Result:        toString(record["result"]),
			Notes:         toString(record["notes"]),
		}
		if created := toTimePtr(record["createdAt"]); created != nil {
			check.CreatedAt = *created
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// Ping verifies graph connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

func userProperties(u domain.User) map[string]any {
	props := map[string]any{
		"userId":    u.ID,
		"name":      u.Name,
		"account":   u.Account,
		"currency":  u.Currency,
		"country":   u.Country,
		"riskScore": u.RiskScore,
		"updatedAt": formatTime(u.UpdatedAt),
	}
	if !u.CreatedAt.IsZero() {
		props["createdAt"] = formatTime(u.CreatedAt)
	}
	return props
}

func transactionProperties(tx domain.Transaction) map[string]any {
	return map[string]any{
		"transactionId":    tx.ID,
		"extrId":           tx.ExtrID,
		"senderName":       tx.Sender.Name,
		"senderAccount":    tx.Sender.Account,
		"recipientName":    tx.Recipient.Name,
		"recipientAccount": tx.Recipient.Account,
		"amount":           tx.Amount.String(),
		"currency":         tx.Currency,
		"country":          tx.Country,
		"status":           string(tx.Status),
		"suspicious":       tx.BusinessRulesChecks.Suspicious,
		"suspicionReasons": domain.JoinReasonCodes(tx.BusinessRulesChecks.Reasons),
		"ofacScore":        tx.Screening.Score,
		"ofacMatch":        tx.Screening.Match,
		"ofacSimilarity":   string(tx.Screening.Similarity),
		"callbackUrl":      tx.CallbackURL,
		"createdAt":        formatTime(tx.CreatedAt),
		"updatedAt":        formatTime(tx.UpdatedAt),
	}
}

func reviewProperties(next domain.Status, review domain.SecondaryReview) map[string]any {
	props := secondaryReviewProperties(review)
	props["status"] = string(next)
	return props
}

func secondaryReviewProperties(review domain.SecondaryReview) map[string]any {
	return map[string]any{
		"asyncCheck":            true,
		"asyncReportOutcome":    review.Outcome,
		"asyncReportScore":      review.Score,
		"asyncReportMatch":      review.Match,
		"asyncReportSimilarity": string(review.Similarity),
		"asyncReportNotes":      review.Notes,
		"asyncReportAt":         formatTime(review.ReviewedAt),
		"updatedAt":             formatTime(review.ReviewedAt),
	}
}

func decodeUser(record graph.Record) domain.User {
	u := domain.User{
		ID:        toString(record["userId"]),
		Name:      toString(record["name"]),
		Account:   toString(record["account"]),
		Currency:  toString(record["currency"]),
		Country:   toString(record["country"]),
		RiskScore: toFloat64(record["riskScore"]),
	}
	if created := toTimePtr(record["createdAt"]); created != nil {
		u.CreatedAt = *created
	}
	if updated := toTimePtr(record["updatedAt"]); updated != nil {
		u.UpdatedAt = *updated
	}
	return u
}

func decodeTransaction(val any) (domain.Transaction, error) {
	props, ok := val.(map[string]any)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("unexpected transaction record %T", val)
	}

	amount, err := decimal.NewFromString(toString(props["amount"]))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: invalid amount: %w", toString(props["transactionId"]), err)
	}

	tx := domain.Transaction{
		ID:        toString(props["transactionId"]),
		ExtrID:    toString(props["extrId"]),
		Sender:    domain.Party{Name: toString(props["senderName"]), Account: toString(props["senderAccount"])},
		Recipient: domain.Party{Name: toString(props["recipientName"]), Account: toString(props["recipientAccount"])},
		Amount:    amount,
		Currency:  toString(props["currency"]),
		Country:   toString(props["country"]),
		Status:    domain.Status(toString(props["status"])),
		BusinessRulesChecks: domain.BusinessRulesChecks{
			Suspicious: toBool(props["suspicious"]),
			Reasons:    domain.ParseReasonCodes(toString(props["suspicionReasons"])),
		},
		Screening: domain.ScreeningResult{
			Score:      toFloat64(props["ofacScore"]),
			Match:      toBool(props["ofacMatch"]),
			Similarity: domain.ParseSimilarity(toString(props["ofacSimilarity"])),
		},
		CallbackURL: toString(props["callbackUrl"]),
	}
	if created := toTimePtr(props["createdAt"]); created != nil {
		tx.CreatedAt = *created
	}
	if updated := toTimePtr(props["updatedAt"]); updated != nil {
		tx.UpdatedAt = *updated
	}
	if toBool(props["asyncCheck"]) {
		review := &domain.SecondaryReview{
			Outcome:    toString(props["asyncReportOutcome"]),
			Score:      toFloat64(props["asyncReportScore"]),
			Match:      toBool(props["asyncReportMatch"]),
			Similarity: domain.ParseSimilarity(toString(props["asyncReportSimilarity"])),
			Notes:      toString(props["asyncReportNotes"]),
		}
		if at := toTimePtr(props["asyncReportAt"]); at != nil {
			review.ReviewedAt = *at
		}
		tx.SecondaryReview = review
	}
	return tx, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func toBool(val any) bool {
	v, _ := val.(bool)
	return v
}

func toTimePtr(val any) *time.Time {
	switch v := val.(type) {
	case time.Time:
		return &v
	case string:
		if v == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return &parsed
		}
	}
	return nil
}

var schemaCypher = []string{
	`CREATE CONSTRAINT user_account IF NOT EXISTS FOR (u:User) REQUIRE u.account IS UNIQUE`,
	`CREATE CONSTRAINT transaction_extr_id IF NOT EXISTS FOR (t:Transaction) REQUIRE t.extrId IS UNIQUE`,
	`CREATE CONSTRAINT transaction_id IF NOT EXISTS FOR (t:Transaction) REQUIRE t.transactionId IS UNIQUE`,
}

const userReturnClause = `
RETURN u.userId AS userId,
       u.name AS name,
       u.account AS account,
       u.currency AS currency,
       u.country AS country,
       u.riskScore AS riskScore,
       u.createdAt AS createdAt,
       u.updatedAt AS updatedAt
`

const ensureUserCypher = `
MERGE (u:User {account: $account})
ON CREATE SET u += $props
` + userReturnClause

const findUserCypher = `
MATCH (u:User {account: $account})
` + userReturnClause

const transactionExistsCypher = `
OPTIONAL MATCH (t:Transaction {extrId: $extrId})
RETURN t IS NOT NULL AS found
`

const recentTransactionsCypher = `
MATCH (:User {account: $account})-[:SENT]->(t:Transaction)
RETURN properties(t) AS tx
ORDER BY datetime(t.createdAt) DESC
LIMIT $limit
`

const insertTransactionCypher = `
MERGE (sender:User {account: $senderAccount})
ON CREATE SET sender.userId = randomUUID(),
              sender.name = $senderName,
              sender.createdAt = $createdAt,
              sender.updatedAt = $createdAt
MERGE (t:Transaction {extrId: $extrId})
ON CREATE SET t += $props
WITH sender, t, t.transactionId = $transactionId AS created
FOREACH (_ IN CASE WHEN created THEN [1] ELSE [] END |
	MERGE (sender)-[:SENT]->(t)
	MERGE (c:Counterparty {account: $recipientAccount})
	SET c.name = $recipientName
	MERGE (t)-[:PAID_TO]->(c)
)
RETURN created
`

const getTransactionCypher = `
MATCH (t:Transaction {transactionId: $transactionId})
RETURN properties(t) AS tx
`

const compareAndSetStatusCypher = `
MATCH (t:Transaction {transactionId: $transactionId})
SET t._lock = true
WITH t, t.status = $expected AS matched
FOREACH (_ IN CASE WHEN matched THEN [1] ELSE [] END |
	SET t += $props
)
REMOVE t._lock
RETURN matched
`

const attachSecondaryReviewCypher = `
MATCH (t:Transaction {transactionId: $transactionId})
SET t += $props
RETURN t.transactionId AS transactionId
`

const recordComplianceCheckCypher = `
MATCH (t:Transaction {transactionId: $transactionId})
CREATE (c:ComplianceCheck)
SET c += $props
CREATE (t)-[:HAS_CHECK]->(c)
RETURN c.checkId AS checkId
`

const complianceChecksCypher = `
MATCH (:Transaction {transactionId: $transactionId})-[:HAS_CHECK]->(c:ComplianceCheck)
RETURN c.checkId AS checkId,
       c.checkType AS checkType,
       c.result AS result,
       c.notes AS notes,
       c.createdAt AS createdAt
ORDER BY datetime(c.createdAt)
`
