// Package notify delivers review outcomes to callers and compliance staff.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vanshika/txscreen/internal/domain"
)

const defaultCallbackTimeout = 10 * time.Second

// CallbackNotifier POSTs the reviewed transaction to its callback URL. Delivery
// is attempted once; failures are returned to the caller, who only logs them.
type CallbackNotifier struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewCallbackNotifier builds a CallbackNotifier. A nil httpClient uses a
// default client.
func NewCallbackNotifier(httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *CallbackNotifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackNotifier{
		http:    httpClient,
		timeout: timeout,
		logger:  logger.With("component", "callback"),
	}
}

type callbackData struct {
	Transaction domain.TransactionDocument `json:"transaction"`
	Note        string                     `json:"note"`
}

type callbackPayload struct {
	Status string       `json:"status"`
	Data   callbackData `json:"data"`
}

// Notify sends {status: "success", data: {transaction, note}}.
func (n *CallbackNotifier) Notify(ctx context.Context, tx domain.Transaction, note string) error {
	if tx.CallbackURL == "" {
		return nil
	}

	body, err := json.Marshal(callbackPayload{
		Status: "success",
		Data: callbackData{
			Transaction: domain.NewTransactionDocument(tx),
			Note:        note,
		},
	})
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tx.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	n.logger.Debug("callback delivered", "transaction_id", tx.ID, "status", tx.Status)
	return nil
}

// Notifier is implemented by every delivery channel in this package.
type Notifier interface {
	Notify(ctx context.Context, tx domain.Transaction, note string) error
}

// Multi fans a notification out to several notifiers. Every notifier is
// attempted; their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, tx domain.Transaction, note string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, tx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
