package store

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a match changed underneath a transaction. Transaction
	// retries fn on it up to MaxRetries times before giving up.
	ErrConflict = errors.New("concurrent update conflict")

	ErrNameTaken = errors.New("username already taken")
)
