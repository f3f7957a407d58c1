package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vanshika/txscreen/internal/auth"
	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/service"
)

type stubService struct {
	screenErr error
	getErr    error
	lastInput service.ScreenInput
	tx        domain.Transaction
	profile   service.UserProfile
}

func (s *stubService) Screen(_ context.Context, in service.ScreenInput) (domain.Transaction, error) {
	s.lastInput = in
	if s.screenErr != nil {
		return domain.Transaction{}, s.screenErr
	}
	return s.tx, nil
}

func (s *stubService) GetTransaction(_ context.Context, id string) (domain.Transaction, error) {
	if s.getErr != nil {
		return domain.Transaction{}, s.getErr
	}
	tx := s.tx
	tx.ID = id
	return tx, nil
}

func (s *stubService) GetUser(_ context.Context, account string) (service.UserProfile, error) {
	if s.getErr != nil {
		return service.UserProfile{}, s.getErr
	}
	p := s.profile
	p.User.Account = account
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func screenedTx() domain.Transaction {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Transaction{
		ID:        "TX-1",
		ExtrID:    "EXT-1",
		Sender:    domain.Party{Name: "Jane Doe", Account: "ACC-1"},
		Recipient: domain.Party{Name: "Jane Doe", Account: "ACC-1"},
		Amount:    decimal.RequireFromString("120.5"),
		Currency:  "USD",
		Country:   "US",
		Status:    domain.StatusPending,
		Screening: domain.ScreeningResult{Similarity: domain.SimilarityWeak},
		CreatedAt: at,
	}
}

func newTestRouter(svc TransactionService, deps RouterDependencies) http.Handler {
	deps.API = NewAPIHandlers(discardLogger(), svc)
	return NewRouter(discardLogger(), deps)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

const screenBody = `{
	"account": "ACC-1",
	"name": "Jane Doe",
	"currency": "usd",
	"country": "us",
	"amount": 120.50,
	"callbackUrl": "https://example.com/hook",
	"extrId": "EXT-1"
}`

func TestScreenTransaction(t *testing.T) {
	svc := &stubService{tx: screenedTx()}
	router := newTestRouter(svc, RouterDependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/screen", strings.NewReader(screenBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" {
		t.Fatalf("expected success envelope, got %+v", env)
	}

	var doc domain.TransactionDocument
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("failed to decode transaction: %v", err)
	}
	if doc.ExtrID != "EXT-1" || doc.Status != domain.StatusPending || doc.Amount != "120.50" {
		t.Errorf("unexpected document: %+v", doc)
	}

	if !svc.lastInput.Amount.Equal(decimal.RequireFromString("120.5")) {
		t.Errorf("amount not passed through: %s", svc.lastInput.Amount)
	}
	if svc.lastInput.Recipient != nil {
		t.Errorf("expected single-party request, got recipient %+v", svc.lastInput.Recipient)
	}
}

func TestScreenTransaction_WithRecipient(t *testing.T) {
	svc := &stubService{tx: screenedTx()}
	router := newTestRouter(svc, RouterDependencies{})

	body := strings.Replace(screenBody, `"extrId": "EXT-1"`, `"extrId": "EXT-1", "recipient": {"name": "John Roe", "account": "ACC-2"}`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/screen", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if r := svc.lastInput.Recipient; r == nil || r.Account != "ACC-2" || r.Name != "John Roe" {
		t.Fatalf("recipient not passed through: %+v", r)
	}
}

func TestScreenTransaction_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"account":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"account":"A","bogus":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation",
			body:       screenBody,
			err:        &service.ValidationError{Field: "name", Message: `"name" length must be between 3 and 100 characters`},
			wantStatus: http.StatusBadRequest,
			wantMsg:    `"name" length must be between 3 and 100 characters`,
		},
		{
			name:       "duplicate extrId",
			body:       screenBody,
			err:        fmt.Errorf("insert: %w", domain.ErrDuplicateExtrID),
			wantStatus: http.StatusConflict,
			wantMsg:    "ExtrId already exists",
		},
		{
			name:       "store failure",
			body:       screenBody,
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubService{screenErr: tt.err}, RouterDependencies{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/screen", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if env.Status != "error" {
				t.Errorf("expected error envelope, got %q", env.Status)
			}
			if tt.wantMsg != "" && env.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, env.Message)
			}
			if strings.Contains(env.Message, "connection refused") {
				t.Errorf("internal error leaked to client: %q", env.Message)
			}
		})
	}
}

func TestScreenTransaction_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(&stubService{}, RouterDependencies{})
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/transactions/TX-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestGetTransaction(t *testing.T) {
	router := newTestRouter(&stubService{tx: screenedTx()}, RouterDependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TX-42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var doc domain.TransactionDocument
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &doc); err != nil {
		t.Fatalf("failed to decode transaction: %v", err)
	}
	if doc.ID != "TX-42" {
		t.Errorf("expected id TX-42, got %s", doc.ID)
	}

	router = newTestRouter(&stubService{getErr: fmt.Errorf("get: %w", domain.ErrNotFound)}, RouterDependencies{})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestGetUser(t *testing.T) {
	svc := &stubService{profile: service.UserProfile{
		User:   domain.User{ID: "USR-1", Name: "Jane Doe", Country: "US"},
		Recent: []domain.Transaction{screenedTx()},
	}}
	router := newTestRouter(svc, RouterDependencies{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/ACC-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var user userResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &user); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	if user.Account != "ACC-1" || len(user.Transactions) != 1 {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestHealthz(t *testing.T) {
	down := StoreHealthService{Store: pingFunc(func(context.Context) error { return errors.New("db down") })}
	router := NewRouter(discardLogger(), RouterDependencies{Health: down})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	router = NewRouter(discardLogger(), RouterDependencies{Health: StoreHealthService{}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestAuthMiddleware(t *testing.T) {
	authn, err := auth.New("test-secret", "txscreen")
	if err != nil {
		t.Fatalf("failed to build authenticator: %v", err)
	}
	token, err := authn.Issue("partner-a", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	router := newTestRouter(&stubService{tx: screenedTx()}, RouterDependencies{Auth: authn})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TX-1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}

	// health stays public
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public health check, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	router := newTestRouter(&stubService{tx: screenedTx()}, RouterDependencies{Limiter: limiter})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TX-1", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&stubService{}, RouterDependencies{AllowedOrigins: []string{"https://console.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions/screen", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/transactions/screen", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}
