package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"loanchain/core/events"
	"loanchain/core/types"
	nativecommon "loanchain/native/common"
)

const moduleName = "bank"

var (
	errNilState = errors.New("bank ledger: state not configured")
	// ErrInvalidAsset is returned when the asset symbol is missing.
	ErrInvalidAsset = errors.New("bank ledger: asset not specified")
	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("bank ledger: amount must be positive")
	// ErrInsufficientFunds is returned when the payer balance cannot cover the
	// transfer.
	ErrInsufficientFunds = errors.New("bank ledger: insufficient funds")
)

const EventTypeTransfer = "bank.transfer"

type ledgerState interface {
	BalanceGet(asset string, addr [20]byte) (*big.Int, error)
	BalancePut(asset string, addr [20]byte, amount *big.Int) error
}

type bankEvent struct {
	evt *types.Event
}

func (e bankEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bankEvent) Event() *types.Event { return e.evt }

// Ledger keeps fungible asset balances per (asset, address) pair and moves
// them synchronously. It is the asset-transfer collaborator consumed by the
// loan engine.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewLedger creates a balance ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPauses wires the administrative pause view.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(bankEvent{evt: evt})
}

func normalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrInvalidAsset
	}
	return trimmed, nil
}

// Transfer moves amount units of asset from payer to payee. The balances are
// only persisted once both sides of the move are known to succeed.
func (l *Ledger) Transfer(payer, payee [20]byte, asset string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.state.BalanceGet(normalized, payer)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s %s",
			ErrInsufficientFunds, hex.EncodeToString(payer[:]), fromBalance, amount, normalized)
	}
	if payer != payee {
		toBalance, err := l.state.BalanceGet(normalized, payee)
		if err != nil {
			return err
		}
		if err := l.state.BalancePut(normalized, payer, new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := l.state.BalancePut(normalized, payee, new(big.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.emit(&types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"payer":  hex.EncodeToString(payer[:]),
		"payee":  hex.EncodeToString(payee[:]),
		"asset":  normalized,
		"amount": amount.String(),
	}})
	return nil
}

// Mint credits amount units of asset to addr. Used for genesis seeding and
// tests.
func (l *Ledger) Mint(addr [20]byte, asset string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.BalanceGet(normalized, addr)
	if err != nil {
		return err
	}
	return l.state.BalancePut(normalized, addr, new(big.Int).Add(balance, amount))
}

// BalanceOf returns the stored balance of addr for asset.
func (l *Ledger) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return l.state.BalanceGet(normalized, addr)
}
