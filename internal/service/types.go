package service

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
)

// PartyInput is an optional explicit counterparty.
type PartyInput struct {
	Name    string
	Account string
}

// ScreenInput is the inbound screening request. Without Recipient the request
// describes a single party that is both sender and recipient.
type ScreenInput struct {
	Account     string
	Name        string
	Currency    string
	Country     string
	Amount      decimal.Decimal
	CallbackURL string
	ExtrID      string
	Recipient   *PartyInput
}

// ValidationError reports the first invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the request and returns a normalized copy: trimmed strings
// and upper-cased currency and country codes.
func (in ScreenInput) Validate() (ScreenInput, error) {
	out := in
	out.Account = sanitizeString(in.Account)
	out.Name = sanitizeString(in.Name)
	out.Currency = normalizeCode(in.Currency)
	out.Country = normalizeCode(in.Country)
	out.CallbackURL = sanitizeString(in.CallbackURL)
	out.ExtrID = sanitizeString(in.ExtrID)

	if out.Account == "" {
		return ScreenInput{}, invalid("account", `"account" is required`)
	}
	if n := utf8.RuneCountInString(out.Name); n < 3 || n > 100 {
		return ScreenInput{}, invalid("name", `"name" length must be between 3 and 100 characters`)
	}
	if !isLetters(out.Currency, 3) {
		return ScreenInput{}, invalid("currency", `"currency" must be a 3 letter code`)
	}
	if !isLetters(out.Country, 2) {
		return ScreenInput{}, invalid("country", `"country" must be a 2 letter code`)
	}
	if !out.Amount.IsPositive() {
		return ScreenInput{}, invalid("amount", `"amount" must be a positive number`)
	}
	if !out.Amount.Equal(out.Amount.Round(2)) {
		return ScreenInput{}, invalid("amount", `"amount" must have no more than 2 decimal places`)
	}
	if out.CallbackURL == "" {
		return ScreenInput{}, invalid("callbackUrl", `"callbackUrl" is required`)
	}
	if u, err := url.Parse(out.CallbackURL); err != nil || !u.IsAbs() || u.Host == "" {
		return ScreenInput{}, invalid("callbackUrl", `"callbackUrl" must be an absolute URL`)
	}
	if out.ExtrID == "" {
		return ScreenInput{}, invalid("extrId", `"extrId" is required`)
	}

	if in.Recipient != nil {
		r := PartyInput{
			Name:    sanitizeString(in.Recipient.Name),
			Account: sanitizeString(in.Recipient.Account),
		}
		if r.Account == "" {
			return ScreenInput{}, invalid("recipient.account", `"recipient.account" is required`)
		}
		if n := utf8.RuneCountInString(r.Name); n < 3 || n > 100 {
			return ScreenInput{}, invalid("recipient.name", `"recipient.name" length must be between 3 and 100 characters`)
		}
		out.Recipient = &r
	}
	return out, nil
}

// recipient resolves the counterparty, defaulting to the sender.
func (in ScreenInput) recipient() domain.Party {
	if in.Recipient != nil {
		return domain.Party{Name: in.Recipient.Name, Account: in.Recipient.Account}
	}
	return domain.Party{Name: in.Name, Account: in.Account}
}

// UserProfile is a sender together with their latest transactions.
type UserProfile struct {
	User   domain.User
	Recent []domain.Transaction
}
