package loan

import (
	"encoding/hex"
	"strconv"

	"loanchain/core/types"
)

const (
	EventTypeLoanProposed        = "loan.proposed"
	EventTypeLoanImported        = "loan.imported"
	EventTypeLoanCommitted       = "loan.committed"
	EventTypeLoanExecuted        = "loan.executed"
	EventTypeLoanCanceled        = "loan.canceled"
	EventTypeLoanPayment         = "loan.payment"
	EventTypeLoanCompleted       = "loan.completed"
	EventTypeLoanPendingCanceled = "loan.pending_canceled"
	EventTypeLoanDeleted         = "loan.deleted"
	EventTypeLoanAssociated      = "loan.associated"
	EventTypeLoanDisassociated   = "loan.disassociated"
	EventTypeAllowlistModified   = "loan.allowlist"
)

// NewProposedEvent returns the canonical payload for a freshly proposed loan.
func NewProposedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanProposed, l) }

// NewImportedEvent returns the canonical payload for a recorded pre-existing
// loan.
func NewImportedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanImported, l) }

// NewCommittedEvent returns the canonical payload emitted when the borrower
// commits to a loan.
func NewCommittedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanCommitted, l) }

// NewExecutedEvent returns the canonical payload emitted when the lender
// executes a committed loan.
func NewExecutedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanExecuted, l) }

// NewCanceledEvent returns the canonical payload for a cancellation.
func NewCanceledEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanCanceled, l) }

// NewPaymentEvent returns the canonical payload for a partial repayment.
func NewPaymentEvent(l *Loan, amount string) *types.Event {
	evt := newLoanEvent(EventTypeLoanPayment, l)
	evt.Attributes["amount"] = amount
	return evt
}

// NewCompletedEvent returns the canonical payload emitted when the final
// repayment settles the loan.
func NewCompletedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanCompleted, l) }

// NewPendingCanceledEvent returns the canonical payload for removal of a loan
// that never started.
func NewPendingCanceledEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanPendingCanceled, l)
}

// NewDeletedEvent returns the canonical payload for removal of a terminal
// loan.
func NewDeletedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanDeleted, l) }

// NewAssociatedEvent returns the payload linking a participant to a loan id.
func NewAssociatedEvent(id uint64, participant [20]byte) *types.Event {
	return newIndexEvent(EventTypeLoanAssociated, id, participant)
}

// NewDisassociatedEvent returns the payload unlinking a participant from a
// loan id.
func NewDisassociatedEvent(id uint64, participant [20]byte) *types.Event {
	return newIndexEvent(EventTypeLoanDisassociated, id, participant)
}

// NewAllowlistEvent returns the payload recording an allowlist mutation.
func NewAllowlistEvent(owner, proposer [20]byte, allowed bool) *types.Event {
	return &types.Event{Type: EventTypeAllowlistModified, Attributes: map[string]string{
		"owner":    hex.EncodeToString(owner[:]),
		"proposer": hex.EncodeToString(proposer[:]),
		"allowed":  strconv.FormatBool(allowed),
	}}
}

func newLoanEvent(eventType string, l *Loan) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(l.ID, 10)
	attrs["lender"] = hex.EncodeToString(l.Lender[:])
	attrs["borrower"] = hex.EncodeToString(l.Borrower[:])
	attrs["asset"] = l.Asset
	if l.AmountLoaned != nil {
		attrs["amountLoaned"] = l.AmountLoaned.String()
	}
	if l.AmountRepaid != nil {
		attrs["amountRepaid"] = l.AmountRepaid.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newIndexEvent(eventType string, id uint64, participant [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"id":          strconv.FormatUint(id, 10),
		"participant": hex.EncodeToString(participant[:]),
	}}
}
