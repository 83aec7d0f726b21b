package loan

import "errors"

// The loan engine reports every failure through one of these sentinels so
// callers can discriminate programmatically via errors.Is. All failures abort
// the enclosing operation with no partial state change.
var (
	// ErrNilState is returned when the engine has no persistence backend wired.
	ErrNilState = errors.New("loan engine: state not configured")
	// ErrNilTransferer is returned when execution or repayment needs the asset
	// transfer collaborator and none is configured.
	ErrNilTransferer = errors.New("loan engine: transferer not configured")
	// ErrLoanNotFound is returned for operations against an unknown loan id.
	ErrLoanNotFound = errors.New("loan engine: loan not found")
	// ErrInvalidAmount covers zero or negative principal, and repayments that
	// are non-positive or would exceed the outstanding principal.
	ErrInvalidAmount = errors.New("loan engine: invalid amount")
	// ErrInvalidAsset is returned when the asset identifier is missing.
	ErrInvalidAsset = errors.New("loan engine: asset not specified")
	// ErrInvalidRecipient is returned when the borrower equals the lender, or
	// a party address is the zero sentinel.
	ErrInvalidRecipient = errors.New("loan engine: invalid recipient")
	// ErrInvalidState is returned when the lifecycle state machine forbids the
	// attempted transition.
	ErrInvalidState = errors.New("loan engine: operation not permitted in current state")
	// ErrNotAllowlisted is returned when the proposer is not on the borrower's
	// allowlist.
	ErrNotAllowlisted = errors.New("loan engine: proposer not on borrower allowlist")
	// ErrUnauthorized is returned when the caller is not the party the
	// transition requires.
	ErrUnauthorized = errors.New("loan engine: caller not authorized")
	// ErrRepaidExceedsPrincipal is returned when an import declares more repaid
	// than the principal.
	ErrRepaidExceedsPrincipal = errors.New("loan engine: repaid amount exceeds principal")
	// ErrTransferFailed wraps failures reported by the asset transfer
	// collaborator.
	ErrTransferFailed = errors.New("loan engine: asset transfer failed")
)
