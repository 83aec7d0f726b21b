package loan

import (
	"fmt"

	nativecommon "loanchain/native/common"
)

// The allowlist stores, per owner, the addresses permitted to propose loans to
// them. Removal tombstones the slot in place (zero address) and insertion
// reuses the highest-indexed tombstoned slot before appending, so membership
// churn does not grow the stored sequence.

// Allow records proposer on owner's allowlist. Re-allowing a present proposer
// is a silent no-op with no event.
func (e *Engine) Allow(owner, proposer [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(proposer) {
		return fmt.Errorf("%w: zero proposer", ErrInvalidRecipient)
	}
	release := e.locks.acquire(addrLockKey(owner))
	defer release()

	list, err := e.state.AllowlistGet(owner)
	if err != nil {
		return err
	}
	for _, entry := range list {
		if entry == proposer {
			return nil
		}
	}
	slot := -1
	for i := len(list) - 1; i >= 0; i-- {
		if isZeroAddress(list[i]) {
			slot = i
			break
		}
	}
	if slot >= 0 {
		list[slot] = proposer
	} else {
		list = append(list, proposer)
	}
	if err := e.state.AllowlistPut(owner, list); err != nil {
		return err
	}
	e.emit(NewAllowlistEvent(owner, proposer, true))
	return nil
}

// Disallow tombstones every occurrence of proposer on owner's allowlist. A
// missing entry is a silent no-op.
func (e *Engine) Disallow(owner, proposer [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(proposer) {
		return fmt.Errorf("%w: zero proposer", ErrInvalidRecipient)
	}
	release := e.locks.acquire(addrLockKey(owner))
	defer release()

	list, err := e.state.AllowlistGet(owner)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	removed := 0
	for i := range list {
		if list[i] == proposer {
			list[i] = [20]byte{}
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	if err := e.state.AllowlistPut(owner, list); err != nil {
		return err
	}
	for i := 0; i < removed; i++ {
		e.emit(NewAllowlistEvent(owner, proposer, false))
	}
	return nil
}

// IsAllowed reports whether proposer occupies a live slot on owner's
// allowlist.
func (e *Engine) IsAllowed(owner, proposer [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	list, err := e.state.AllowlistGet(owner)
	if err != nil {
		return false, err
	}
	return allowlistContains(list, proposer), nil
}

// Allowlist returns the raw stored sequence for owner. The result may contain
// tombstoned (zero address) slots; callers needing only live entries must
// filter.
func (e *Engine) Allowlist(owner [20]byte) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	list, err := e.state.AllowlistGet(owner)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, len(list))
	copy(out, list)
	return out, nil
}

func allowlistContains(list [][20]byte, proposer [20]byte) bool {
	if isZeroAddress(proposer) {
		return false
	}
	for _, entry := range list {
		if entry == proposer {
			return true
		}
	}
	return false
}

func isZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
