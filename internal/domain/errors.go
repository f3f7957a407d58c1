package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateExtrID is returned when a transaction with the same extrId exists.
	ErrDuplicateExtrID = errors.New("extrId already exists")
	// ErrStatusConflict is returned by a compare-and-set when the stored status
	// no longer matches the expected one.
	ErrStatusConflict = errors.New("transaction status changed concurrently")
)
