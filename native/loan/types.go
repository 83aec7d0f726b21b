package loan

import (
	"fmt"
	"math/big"
	"strings"
)

// Loan captures the parties, principal and lifecycle flags of a single
// zero-interest peer-to-peer loan. Identifiers are assigned by the engine from
// a monotonic counter; id 0 is reserved as the "no loan" sentinel and doubles
// as the tombstone value in participant index slots.
type Loan struct {
	ID           uint64
	Lender       [20]byte
	Borrower     [20]byte
	Asset        string
	AmountLoaned *big.Int
	AmountRepaid *big.Int
	// Lifecycle flags. All are one-way transitions except Repayable, which is
	// set on execution and cleared again on cancellation or completion.
	BorrowerCommitted bool
	Started           bool
	Repayable         bool
	Canceled          bool
	Completed         bool
	// Imported marks a pre-existing real-world loan that is merely being
	// recorded; execution skips the principal transfer for imported loans.
	Imported bool
}

// Clone returns a deep copy of the loan so callers can safely mutate the copy
// without affecting the stored instance.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.AmountLoaned != nil {
		clone.AmountLoaned = new(big.Int).Set(l.AmountLoaned)
	} else {
		clone.AmountLoaned = big.NewInt(0)
	}
	if l.AmountRepaid != nil {
		clone.AmountRepaid = new(big.Int).Set(l.AmountRepaid)
	} else {
		clone.AmountRepaid = big.NewInt(0)
	}
	return &clone
}

// Remaining returns the outstanding principal, never negative.
func (l *Loan) Remaining() *big.Int {
	if l == nil || l.AmountLoaned == nil {
		return big.NewInt(0)
	}
	repaid := l.AmountRepaid
	if repaid == nil {
		repaid = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(l.AmountLoaned, repaid)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// NormalizeAsset canonicalises an asset symbol to uppercase and rejects empty
// identifiers.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrInvalidAsset
	}
	return trimmed, nil
}

// SanitizeLoan validates the supplied loan against the record invariants and
// returns a cloned instance with a canonical asset symbol and non-nil amount
// fields. The original value is not mutated.
func SanitizeLoan(l *Loan) (*Loan, error) {
	if l == nil {
		return nil, fmt.Errorf("nil loan")
	}
	clone := l.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("loan id must be positive")
	}
	if clone.Lender == clone.Borrower {
		return nil, ErrInvalidRecipient
	}
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if clone.AmountLoaned.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.AmountRepaid.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if clone.AmountRepaid.Cmp(clone.AmountLoaned) > 0 {
		return nil, ErrRepaidExceedsPrincipal
	}
	return clone, nil
}
