package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/graph"
)

func TestRepository_EnsureUser(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mem.PushWriteResult(graph.Result{Records: []graph.Record{
		{
			"userId":    "USR-1",
			"name":      "Jane Doe",
			"account":   "ACC-1",
			"currency":  "USD",
			"country":   "US",
			"riskScore": 0.25,
			"createdAt": created.Format(time.RFC3339Nano),
			"updatedAt": created.Format(time.RFC3339Nano),
		},
	}})

	user, err := repo.EnsureUser(context.Background(), domain.User{
		ID:        "USR-NEW",
		Name:      "Jane D.",
		Account:   "ACC-1",
		Currency:  "USD",
		Country:   "US",
		CreatedAt: created,
		UpdatedAt: created,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "USR-1" || user.Name != "Jane Doe" {
		t.Errorf("expected stored user to win, got %+v", user)
	}
	if !user.CreatedAt.Equal(created) {
		t.Errorf("createdAt mismatch: want %v got %v", created, user.CreatedAt)
	}

	calls := mem.WriteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 write query, got %d", len(calls))
	}
	if calls[0].Query != ensureUserCypher {
		t.Fatalf("unexpected query\nexpected:\n%s\ngot:\n%s", ensureUserCypher, calls[0].Query)
	}
	if calls[0].Params["account"] != "ACC-1" {
		t.Errorf("account mismatch: got %v", calls[0].Params["account"])
	}
	props, ok := calls[0].Params["props"].(map[string]any)
	if !ok {
		t.Fatalf("expected props map, got %T", calls[0].Params["props"])
	}
	if props["userId"] != "USR-NEW" {
		t.Errorf("userId mismatch: got %v", props["userId"])
	}
}

func TestRepository_EnsureUserRequiresAccount(t *testing.T) {
	repo := New(graph.NewMemoryClient())
	if _, err := repo.EnsureUser(context.Background(), domain.User{Name: "x"}); err == nil {
		t.Fatal("expected error for missing account")
	}
}

func TestRepository_EnsureUserLostRace(t *testing.T) {
	mem := graph.NewMemoryClient().WithHandler(func(q graph.ExecutedQuery) (graph.Result, error) {
		if q.Write {
			return graph.Result{}, fmt.Errorf("%w: duplicate account", graph.ErrConstraintViolation)
		}
		return graph.Result{Records: []graph.Record{{"userId": "USR-9", "account": "ACC-1"}}}, nil
	})
	repo := New(mem)

	user, err := repo.EnsureUser(context.Background(), domain.User{Account: "ACC-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "USR-9" {
		t.Errorf("expected the concurrently created user, got %+v", user)
	}
	if reads := mem.ReadCalls(); len(reads) != 1 || reads[0].Query != findUserCypher {
		t.Errorf("expected a single find query, got %+v", reads)
	}
}

func TestRepository_FindUserByAccountNotFound(t *testing.T) {
	repo := New(graph.NewMemoryClient())
	_, err := repo.FindUserByAccount(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_TransactionExists(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	mem.PushReadResult(graph.Result{Records: []graph.Record{{"found": true}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"found": false}}})

	found, err := repo.TransactionExists(context.Background(), "EXT-1")
	if err != nil || !found {
		t.Fatalf("expected found, got %v (err %v)", found, err)
	}
	found, err = repo.TransactionExists(context.Background(), "EXT-2")
	if err != nil || found {
		t.Fatalf("expected not found, got %v (err %v)", found, err)
	}
	if p := mem.ReadCalls()[0].Params["extrId"]; p != "EXT-1" {
		t.Errorf("extrId mismatch: got %v", p)
	}
}

func sampleTransaction() domain.Transaction {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Transaction{
		ID:        "TX-1",
		ExtrID:    "EXT-1",
		Sender:    domain.Party{Name: "Jane Doe", Account: "ACC-1"},
		Recipient: domain.Party{Name: "John Roe", Account: "ACC-2"},
		Amount:    decimal.RequireFromString("1500.25"),
		Currency:  "USD",
		Country:   "IR",
		Status:    domain.StatusFlagged,
		BusinessRulesChecks: domain.BusinessRulesChecks{
			Suspicious: true,
			Reasons:    []domain.ReasonCode{domain.ReasonHighRiskCountry},
		},
		Screening:   domain.ScreeningResult{Score: 40, Similarity: domain.SimilarityModerate},
		CallbackURL: "https://example.com/hook",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepository_InsertTransaction(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"created": true}}})

	tx := sampleTransaction()
	if err := repo.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	calls := mem.WriteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 write query, got %d", len(calls))
	}
	call := calls[0]
	if call.Query != insertTransactionCypher {
		t.Fatalf("unexpected transaction query\nexpected:\n%s\ngot:\n%s", insertTransactionCypher, call.Query)
	}
	if call.Params["extrId"] != "EXT-1" || call.Params["senderAccount"] != "ACC-1" || call.Params["recipientAccount"] != "ACC-2" {
		t.Errorf("unexpected params: %+v", call.Params)
	}

	props := call.Params["props"].(map[string]any)
	if props["amount"] != "1500.25" {
		t.Errorf("amount should be stored as decimal string, got %v", props["amount"])
	}
	if props["suspicionReasons"] != "R03" {
		t.Errorf("suspicionReasons mismatch: got %v", props["suspicionReasons"])
	}
	if props["ofacSimilarity"] != "moderate" {
		t.Errorf("ofacSimilarity mismatch: got %v", props["ofacSimilarity"])
	}
	if props["createdAt"] != "2025-03-01T12:00:00Z" {
		t.Errorf("createdAt mismatch: got %v", props["createdAt"])
	}
}

func TestRepository_InsertTransactionDuplicate(t *testing.T) {
	tests := []struct {
		name    string
		handler graph.Handler
	}{
		{
			name: "merge matched existing",
			handler: func(graph.ExecutedQuery) (graph.Result, error) {
				return graph.Result{Records: []graph.Record{{"created": false}}}, nil
			},
		},
		{
			name: "constraint violation",
			handler: func(graph.ExecutedQuery) (graph.Result, error) {
				return graph.Result{}, fmt.Errorf("%w: extrId", graph.ErrConstraintViolation)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := New(graph.NewMemoryClient().WithHandler(tt.handler))
			err := repo.InsertTransaction(context.Background(), sampleTransaction())
			if !errors.Is(err, domain.ErrDuplicateExtrID) {
				t.Fatalf("expected ErrDuplicateExtrID, got %v", err)
			}
		})
	}
}

func TestRepository_InsertTransactionValidation(t *testing.T) {
	repo := New(graph.NewMemoryClient())
	tx := sampleTransaction()
	tx.ExtrID = ""
	if err := repo.InsertTransaction(context.Background(), tx); err == nil {
		t.Fatal("expected error for missing extrId")
	}
}

func storedTransaction(id, createdAt string) map[string]any {
	return map[string]any{
		"transactionId":    id,
		"extrId":           "EXT-" + id,
		"senderName":       "Jane Doe",
		"senderAccount":    "ACC-1",
		"recipientName":    "John Roe",
		"recipientAccount": "ACC-2",
		"amount":           "99.90",
		"currency":         "USD",
		"country":          "US",
		"status":           "pending",
		"suspicious":       true,
		"suspicionReasons": "R05,R01",
		"ofacScore":        12.5,
		"ofacMatch":        false,
		"ofacSimilarity":   "weak",
		"callbackUrl":      "",
		"createdAt":        createdAt,
		"updatedAt":        createdAt,
	}
}

func TestRepository_RecentTransactions(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"tx": storedTransaction("TX-2", "2025-03-01T12:05:00.5Z")},
		{"tx": storedTransaction("TX-1", "2025-03-01T12:00:00Z")},
	}})

	txs, err := repo.RecentTransactions(context.Background(), "ACC-1", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txs) != 2 || txs[0].ID != "TX-2" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}

	first := txs[0]
	if !first.Amount.Equal(decimal.RequireFromString("99.9")) {
		t.Errorf("amount mismatch: got %s", first.Amount)
	}
	if len(first.BusinessRulesChecks.Reasons) != 2 || first.BusinessRulesChecks.Reasons[0] != domain.ReasonRapidShortInterval {
		t.Errorf("reasons mismatch: got %v", first.BusinessRulesChecks.Reasons)
	}
	if first.CreatedAt.Nanosecond() != 500000000 {
		t.Errorf("expected fractional seconds preserved, got %v", first.CreatedAt)
	}
	if first.SecondaryReview != nil {
		t.Errorf("expected no secondary review, got %+v", first.SecondaryReview)
	}

	call := mem.ReadCalls()[0]
	if call.Params["limit"] != int64(5) {
		t.Errorf("expected default limit 5, got %v", call.Params["limit"])
	}
	if !strings.Contains(call.Query, "ORDER BY datetime(t.createdAt) DESC") {
		t.Errorf("unexpected ordering in recent transactions query: %s", call.Query)
	}
}

func TestRepository_RecentTransactionsBadAmount(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	stored := storedTransaction("TX-1", "2025-03-01T12:00:00Z")
	stored["amount"] = "not-a-number"
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"tx": stored}}})

	if _, err := repo.RecentTransactions(context.Background(), "ACC-1", 5); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRepository_GetTransaction(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	if _, err := repo.GetTransaction(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stored := storedTransaction("TX-1", "2025-03-01T12:00:00Z")
	stored["status"] = "rejected"
	stored["asyncCheck"] = true
	stored["asyncReportOutcome"] = "high_risk"
	stored["asyncReportScore"] = 90.0
	stored["asyncReportMatch"] = true
	stored["asyncReportSimilarity"] = "strong"
	stored["asyncReportNotes"] = "secondary review outcome high_risk"
	stored["asyncReportAt"] = "2025-03-01T12:00:05Z"
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"tx": stored}}})

	tx, err := repo.GetTransaction(context.Background(), "TX-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.StatusRejected {
		t.Errorf("status mismatch: got %s", tx.Status)
	}
	if tx.SecondaryReview == nil {
		t.Fatal("expected secondary review")
	}
	if tx.SecondaryReview.Similarity != domain.SimilarityStrong || tx.SecondaryReview.Score != 90 {
		t.Errorf("unexpected review: %+v", tx.SecondaryReview)
	}
	if tx.SecondaryReview.ReviewedAt.IsZero() {
		t.Error("expected reviewedAt to be decoded")
	}
}

func TestRepository_CompareAndSetStatus(t *testing.T) {
	review := domain.SecondaryReview{
		Outcome:    "uncertain",
		Score:      50,
		Similarity: domain.SimilarityModerate,
		Notes:      "secondary review outcome uncertain",
		ReviewedAt: time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC),
	}

	tests := []struct {
		name    string
		records []graph.Record
		want    error
	}{
		{"applied", []graph.Record{{"matched": true}}, nil},
		{"stale", []graph.Record{{"matched": false}}, domain.ErrStatusConflict},
		{"missing", nil, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := graph.NewMemoryClient()
			repo := New(mem)
			mem.PushWriteResult(graph.Result{Records: tt.records})

			err := repo.CompareAndSetStatus(context.Background(), "TX-1", domain.StatusPending, domain.StatusApproved, review)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			call := mem.WriteCalls()[0]
			if call.Query != compareAndSetStatusCypher {
				t.Fatalf("unexpected query: %s", call.Query)
			}
			if call.Params["expected"] != "pending" {
				t.Errorf("expected status param pending, got %v", call.Params["expected"])
			}
			props := call.Params["props"].(map[string]any)
			if props["status"] != "approved" || props["asyncReportSimilarity"] != "moderate" {
				t.Errorf("unexpected props: %+v", props)
			}
		})
	}
}

func TestRepository_AttachSecondaryReview(t *testing.T) {
	review := domain.SecondaryReview{
		Outcome:    "clear",
		Score:      10,
		Similarity: domain.SimilarityWeak,
		Notes:      "secondary review outcome clear",
		ReviewedAt: time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC),
	}

	mem := graph.NewMemoryClient()
	repo := New(mem)
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"transactionId": "TX-1"}}})

	if err := repo.AttachSecondaryReview(context.Background(), "TX-1", review); err != nil {
		t.Fatalf("attach: %v", err)
	}
	call := mem.WriteCalls()[0]
	if call.Query != attachSecondaryReviewCypher {
		t.Fatalf("unexpected query: %s", call.Query)
	}
	props := call.Params["props"].(map[string]any)
	if _, ok := props["status"]; ok {
		t.Errorf("status must not be written, got props %+v", props)
	}
	if props["asyncReportOutcome"] != "clear" || props["asyncCheck"] != true {
		t.Errorf("unexpected props: %+v", props)
	}

	mem.PushWriteResult(graph.Result{})
	if err := repo.AttachSecondaryReview(context.Background(), "TX-404", review); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_RecordComplianceCheck(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	check := domain.ComplianceCheck{
		ID:            "CHK-1",
		TransactionID: "TX-1",
		CheckType:     domain.CheckTypeSync,
		Result:        domain.CheckResultFlagged,
		Notes:         "R03",
		CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := repo.RecordComplianceCheck(context.Background(), check); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown transaction, got %v", err)
	}

	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"checkId": "CHK-1"}}})
	if err := repo.RecordComplianceCheck(context.Background(), check); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	props := mem.WriteCalls()[1].Params["props"].(map[string]any)
	if props["checkType"] != "sync" || props["result"] != "flagged" {
		t.Errorf("unexpected props: %+v", props)
	}
}

func TestRepository_ComplianceChecks(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)
	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"checkId": "CHK-1", "checkType": "sync", "result": "clear", "notes": "", "createdAt": "2025-03-01T12:00:00Z"},
		{"checkId": "CHK-2", "checkType": "async", "result": "flagged", "notes": "uncertain", "createdAt": "2025-03-01T12:00:05Z"},
	}})

	checks, err := repo.ComplianceChecks(context.Background(), "TX-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(checks) != 2 || checks[1].CheckType != domain.CheckTypeAsync || checks[1].TransactionID != "TX-1" {
		t.Fatalf("unexpected checks: %+v", checks)
	}
}

func TestRepository_EnsureSchema(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := len(mem.WriteCalls()); got != len(schemaCypher) {
		t.Fatalf("expected %d schema statements, got %d", len(schemaCypher), got)
	}

	failing := New(graph.NewMemoryClient().WithError(errors.New("boom")))
	if err := failing.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error from failing client")
	}
}

func TestRepository_Ping(t *testing.T) {
	down := errors.New("down")
	repo := New(graph.NewMemoryClient().WithConnectivityError(down))
	if err := repo.Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}
