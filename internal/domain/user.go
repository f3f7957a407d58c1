package domain

import "time"

// User is a sender identity. Account is unique and keys the transaction history.
type User struct {
	ID        string
	Name      string
	Account   string
	Currency  string
	Country   string
	RiskScore float64
	CreatedAt time.Time
	UpdatedAt time.Time
}
