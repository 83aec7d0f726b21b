package loan

import (
	"fmt"
	"math/big"

	"loanchain/core/events"
	"loanchain/core/types"
	nativecommon "loanchain/native/common"
)

const moduleName = "loan"

type engineState interface {
	LoanPut(*Loan) error
	LoanGet(id uint64) (*Loan, bool)
	LoanDelete(id uint64) error
	LoanNextID() (uint64, error)
	AllowlistGet(owner [20]byte) ([][20]byte, error)
	AllowlistPut(owner [20]byte, list [][20]byte) error
	ParticipantLoansGet(addr [20]byte) ([]uint64, error)
	ParticipantLoansPut(addr [20]byte, ids []uint64) error
}

// Transferer is the external asset-transfer collaborator. Implementations move
// amount units of asset from payer to payee synchronously and report failure
// as an error; the engine treats that call as the commit point of execution
// and repayment.
type Transferer interface {
	Transfer(payer, payee [20]byte, asset string, amount *big.Int) error
}

type loanEvent struct {
	evt *types.Event
}

func (e loanEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e loanEvent) Event() *types.Event { return e.evt }

// Engine owns the loan lifecycle state machine and its supporting indexes. It
// validates the resolved caller identity and the current record state before
// any mutation, consults the allowlist during proposal, maintains the
// participant index on creation and removal, and invokes the transfer
// collaborator during execution and repayment only.
type Engine struct {
	state    engineState
	transfer Transferer
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	locks    *lockTable
}

// NewEngine creates a loan engine with a no-op emitter. Callers wire the
// persistence backend and transfer collaborator via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		locks:   newLockTable(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransferer configures the asset transfer collaborator.
func (e *Engine) SetTransferer(t Transferer) { e.transfer = t }

// SetPauses wires the administrative pause view consulted before every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(loanEvent{evt: event})
}

func (e *Engine) emitAll(evts []*types.Event) {
	for _, evt := range evts {
		e.emit(evt)
	}
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok := e.state.LoanGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrLoanNotFound, id)
	}
	return record, nil
}

// Propose records a new loan offered by lender to borrower and returns its
// identifier. The lender must be on the borrower's allowlist.
func (e *Engine) Propose(lender, borrower [20]byte, asset string, amount *big.Int) (uint64, error) {
	return e.createLoan(lender, borrower, asset, amount, nil, false)
}

// Import records a pre-existing real-world loan. The principal transfer is
// skipped at execution and alreadyPaid seeds the repaid total.
func (e *Engine) Import(lender, borrower [20]byte, asset string, amount, alreadyPaid *big.Int) (uint64, error) {
	if alreadyPaid == nil {
		alreadyPaid = big.NewInt(0)
	}
	return e.createLoan(lender, borrower, asset, amount, alreadyPaid, true)
}

func (e *Engine) createLoan(lender, borrower [20]byte, asset string, amount, alreadyPaid *big.Int, imported bool) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	// Guards run in a fixed order before any mutation; each failure aborts the
	// whole operation.
	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: principal must be positive", ErrInvalidAmount)
	}
	if borrower == lender {
		return 0, fmt.Errorf("%w: borrower equals lender", ErrInvalidRecipient)
	}
	if isZeroAddress(lender) || isZeroAddress(borrower) {
		return 0, fmt.Errorf("%w: zero address party", ErrInvalidRecipient)
	}
	normalizedAsset, err := NormalizeAsset(asset)
	if err != nil {
		return 0, err
	}

	release := e.locks.acquire(addrLockKey(lender), addrLockKey(borrower))
	defer release()

	allowed, err := e.state.AllowlistGet(borrower)
	if err != nil {
		return 0, err
	}
	if !allowlistContains(allowed, lender) {
		return 0, ErrNotAllowlisted
	}
	if imported {
		if alreadyPaid.Sign() < 0 {
			return 0, fmt.Errorf("%w: repaid amount must not be negative", ErrInvalidAmount)
		}
		if alreadyPaid.Cmp(amount) > 0 {
			return 0, ErrRepaidExceedsPrincipal
		}
	}

	id, err := e.state.LoanNextID()
	if err != nil {
		return 0, err
	}
	repaid := big.NewInt(0)
	if imported {
		repaid = new(big.Int).Set(alreadyPaid)
	}
	record := &Loan{
		ID:           id,
		Lender:       lender,
		Borrower:     borrower,
		Asset:        normalizedAsset,
		AmountLoaned: new(big.Int).Set(amount),
		AmountRepaid: repaid,
		Imported:     imported,
	}

	associated, err := e.associateLoan(id, lender, borrower)
	if err != nil {
		return 0, err
	}
	if err := e.state.LoanPut(record); err != nil {
		return 0, err
	}
	e.emitAll(associated)
	if imported {
		e.emit(NewImportedEvent(record))
	} else {
		e.emit(NewProposedEvent(record))
	}
	return id, nil
}

// Commit records the borrower's agreement to the proposed loan. Committing
// twice is a silent no-op.
func (e *Engine) Commit(caller [20]byte, id uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release := e.locks.acquire(loanLockKey(id))
	defer release()

	record, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if caller != record.Borrower {
		return fmt.Errorf("%w: commit requires the borrower", ErrUnauthorized)
	}
	if record.BorrowerCommitted {
		return nil
	}
	record.BorrowerCommitted = true
	if err := e.state.LoanPut(record); err != nil {
		return err
	}
	e.emit(NewCommittedEvent(record))
	return nil
}

// Execute starts a committed loan. Unless the loan was imported, the principal
// moves from lender to borrower through the transfer collaborator before any
// state is persisted; a failed transfer aborts the operation with no state
// change. Executing an already started loan is a silent no-op.
func (e *Engine) Execute(caller [20]byte, id uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release := e.locks.acquire(loanLockKey(id))
	defer release()

	record, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if caller != record.Lender {
		return fmt.Errorf("%w: execute requires the lender", ErrUnauthorized)
	}
	if record.Started {
		return nil
	}
	if !record.BorrowerCommitted {
		return fmt.Errorf("%w: borrower has not committed", ErrInvalidState)
	}
	if record.Canceled || record.Completed {
		return fmt.Errorf("%w: loan already terminal", ErrInvalidState)
	}
	if !record.Imported {
		if e.transfer == nil {
			return ErrNilTransferer
		}
		if err := e.transfer.Transfer(record.Lender, record.Borrower, record.Asset, record.AmountLoaned); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	record.Started = true
	record.Repayable = true
	if err := e.state.LoanPut(record); err != nil {
		return err
	}
	e.emit(NewExecutedEvent(record))
	return nil
}

// Cancel marks the loan canceled and blocks further repayment. Cancellation is
// permitted after execution; principal already transferred stays with the
// borrower. Canceling twice is a silent no-op.
func (e *Engine) Cancel(caller [20]byte, id uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release := e.locks.acquire(loanLockKey(id))
	defer release()

	record, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if caller != record.Lender {
		return fmt.Errorf("%w: cancel requires the lender", ErrUnauthorized)
	}
	if record.Canceled {
		return nil
	}
	record.Canceled = true
	record.Repayable = false
	if err := e.state.LoanPut(record); err != nil {
		return err
	}
	e.emit(NewCanceledEvent(record))
	return nil
}

// Pay applies a partial repayment from the borrower. The transfer collaborator
// moves the amount from borrower to lender before any state is persisted; when
// the repayment settles the full principal the loan completes atomically with
// that final transfer.
func (e *Engine) Pay(caller [20]byte, id uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release := e.locks.acquire(loanLockKey(id))
	defer release()

	record, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if caller != record.Borrower {
		return fmt.Errorf("%w: pay requires the borrower", ErrUnauthorized)
	}
	if !record.Repayable {
		return fmt.Errorf("%w: loan not repayable", ErrInvalidState)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: payment must be positive", ErrInvalidAmount)
	}
	repaid := new(big.Int).Add(record.AmountRepaid, amount)
	if repaid.Cmp(record.AmountLoaned) > 0 {
		return fmt.Errorf("%w: payment exceeds outstanding principal", ErrInvalidAmount)
	}
	if e.transfer == nil {
		return ErrNilTransferer
	}
	if err := e.transfer.Transfer(record.Borrower, record.Lender, record.Asset, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	record.AmountRepaid = repaid
	settled := repaid.Cmp(record.AmountLoaned) == 0
	if settled {
		record.Completed = true
		record.Repayable = false
	}
	if err := e.state.LoanPut(record); err != nil {
		return err
	}
	e.emit(NewPaymentEvent(record, amount.String()))
	if settled {
		e.emit(NewCompletedEvent(record))
	}
	return nil
}

// CancelPending removes a loan that never started, disassociating both
// parties. Either party may invoke it; once execution has happened the loan
// must be canceled through Cancel instead.
func (e *Engine) CancelPending(caller [20]byte, id uint64) error {
	return e.removeLoan(caller, id, false)
}

// Delete removes a canceled or completed loan, disassociating both parties.
// Either party may invoke it.
func (e *Engine) Delete(caller [20]byte, id uint64) error {
	return e.removeLoan(caller, id, true)
}

func (e *Engine) removeLoan(caller [20]byte, id uint64, requireTerminal bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	// Peek at the record to learn the party addresses, then take the index and
	// record locks in the global order and re-read under them.
	peek, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	release := e.locks.acquire(addrLockKey(peek.Lender), addrLockKey(peek.Borrower), loanLockKey(id))
	defer release()

	record, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if caller != record.Lender && caller != record.Borrower {
		return fmt.Errorf("%w: removal requires the lender or borrower", ErrUnauthorized)
	}
	if requireTerminal {
		if !record.Canceled && !record.Completed {
			return fmt.Errorf("%w: loan not canceled or completed", ErrInvalidState)
		}
	} else if record.Started {
		return fmt.Errorf("%w: started loans must be canceled", ErrInvalidState)
	}

	disassociated, err := e.disassociateLoan(id, record.Lender, record.Borrower)
	if err != nil {
		return err
	}
	if err := e.state.LoanDelete(id); err != nil {
		return err
	}
	if requireTerminal {
		e.emit(NewDeletedEvent(record))
	} else {
		e.emit(NewPendingCanceledEvent(record))
	}
	e.emitAll(disassociated)
	return nil
}

// Loan returns a copy of the stored record.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	return e.loadLoan(id)
}
