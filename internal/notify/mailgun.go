package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/vanshika/txscreen/internal/domain"
)

// MailgunOptions configures compliance e-mail alerts.
type MailgunOptions struct {
	Domain     string
	APIKey     string
	APIBase    string
	Sender     string
	Recipients []string
}

// ErrMailgunConfig is returned when required alert settings are missing.
var ErrMailgunConfig = errors.New("mailgun domain, api key, sender and recipients are required")

type sendFunc func(ctx context.Context, from, subject, body string, to []string) (string, error)

// MailgunAlerter e-mails compliance staff when a review rejects a transaction.
// Other outcomes are ignored.
type MailgunAlerter struct {
	sender     string
	recipients []string
	send       sendFunc
	logger     *slog.Logger
}

// NewMailgunAlerter validates opts and builds a Mailgun-backed alerter.
func NewMailgunAlerter(opts MailgunOptions, logger *slog.Logger) (*MailgunAlerter, error) {
	if opts.Domain == "" || opts.APIKey == "" || opts.Sender == "" || len(opts.Recipients) == 0 {
		return nil, ErrMailgunConfig
	}

	mg := mailgun.NewMailgun(opts.Domain, opts.APIKey)
	if opts.APIBase != "" {
		mg.SetAPIBase(opts.APIBase)
	}

	send := func(ctx context.Context, from, subject, body string, to []string) (string, error) {
		message := mg.NewMessage(from, subject, body, to...)
		resp, id, err := mg.Send(ctx, message)
		if err != nil {
			return "", fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
		}
		return id, nil
	}
	return newMailgunAlerter(opts.Sender, opts.Recipients, send, logger), nil
}

func newMailgunAlerter(sender string, recipients []string, send sendFunc, logger *slog.Logger) *MailgunAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailgunAlerter{
		sender:     sender,
		recipients: recipients,
		send:       send,
		logger:     logger.With("component", "alerts"),
	}
}

func (a *MailgunAlerter) Notify(ctx context.Context, tx domain.Transaction, note string) error {
	if tx.Status != domain.StatusRejected {
		return nil
	}

	subject := fmt.Sprintf("Transaction %s rejected by secondary review", tx.ExtrID)
	id, err := a.send(ctx, a.sender, subject, alertBody(tx, note), a.recipients)
	if err != nil {
		a.logger.Error("compliance alert failed", "transaction_id", tx.ID, "error", err)
		return err
	}
	a.logger.Info("compliance alert sent", "transaction_id", tx.ID, "message_id", id)
	return nil
}

func alertBody(tx domain.Transaction, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction: %s (extrId %s)\n", tx.ID, tx.ExtrID)
	fmt.Fprintf(&b, "Sender: %s <%s>\n", tx.Sender.Name, tx.Sender.Account)
	fmt.Fprintf(&b, "Recipient: %s <%s>\n", tx.Recipient.Name, tx.Recipient.Account)
	fmt.Fprintf(&b, "Amount: %s %s, country %s\n", tx.Amount.StringFixed(2), tx.Currency, tx.Country)
	fmt.Fprintf(&b, "Status: %s\n", tx.Status)
	if reasons := domain.JoinReasonCodes(tx.BusinessRulesChecks.Reasons); reasons != "" {
		fmt.Fprintf(&b, "Rule reasons: %s\n", reasons)
	}
	fmt.Fprintf(&b, "Sanctions: score %.1f, similarity %s\n", tx.Screening.Score, tx.Screening.Similarity)
	if note != "" {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	return b.String()
}
