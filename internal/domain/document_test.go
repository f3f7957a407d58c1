package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDocument_KeepsSubSecondTimes(t *testing.T) {
	first := time.Date(2025, 3, 1, 12, 0, 0, 100_000_000, time.UTC)
	second := first.Add(250 * time.Millisecond)

	tx := Transaction{
		ID:        "tx-1",
		ExtrID:    "EXT-1",
		Amount:    decimal.RequireFromString("120.50"),
		Status:    StatusPending,
		CreatedAt: first,
		UpdatedAt: second,
		SecondaryReview: &SecondaryReview{
			Outcome:    "clear",
			Similarity: SimilarityWeak,
			ReviewedAt: second.Add(time.Nanosecond),
		},
	}

	doc := NewTransactionDocument(tx)
	assert.Equal(t, "2025-03-01T12:00:00.1Z", doc.CreatedAt)
	assert.NotEqual(t, doc.CreatedAt, doc.UpdatedAt)

	got, err := doc.Transaction()
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(first))
	assert.True(t, got.UpdatedAt.Equal(second))
	assert.True(t, got.CreatedAt.Before(got.UpdatedAt))
	require.NotNil(t, got.SecondaryReview)
	assert.True(t, got.SecondaryReview.ReviewedAt.Equal(second.Add(time.Nanosecond)))
}

func TestTransactionDocument_AcceptsWholeSecondTimes(t *testing.T) {
	doc := TransactionDocument{ExtrID: "EXT-1", Amount: "10.00", CreatedAt: "2025-03-01T12:00:00Z"}

	got, err := doc.Transaction()
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, got.UpdatedAt.IsZero())
}

func TestUserDocument_KeepsSubSecondTimes(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 987_654_321, time.UTC)

	got, err := NewUserDocument(User{ID: "u-1", Account: "ACC-1", CreatedAt: created}).User()
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
}
