package validate

import (
	"errors"
	"sync"
)

var (
	// ErrReceiptSpent reports a receipt that was already redeemed once.
	ErrReceiptSpent = errors.New("validate: receipt already redeemed")
	// ErrReceiptMismatch reports SQL that differs from the accepted statement.
	ErrReceiptMismatch = errors.New("validate: receipt does not cover this statement")
)

// Receipt proves that a statement passed validation in this pipeline run.
// Receipts cannot be constructed outside this package and redeem exactly
// once, for exactly the normalized SQL they were minted for.
type Receipt struct {
	mu       sync.Mutex
	sql      string
	redeemed bool
}

// Redeem consumes the receipt for the given statement text.
func (r *Receipt) Redeem(sql string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redeemed {
		return ErrReceiptSpent
	}
	if sql != r.sql {
		return ErrReceiptMismatch
	}
	r.redeemed = true
	return nil
}
