package loan

import "loanchain/core/types"

// The participant index stores, per address, the loan ids that address takes
// part in. Slots hold id 0 as the tombstone. Removal swaps the vacated slot
// with the logical-last element and tombstones the freed position, keeping the
// live ids densely packed ahead of the tombstone tail; insertion reuses the
// head of that tail before appending.

func (e *Engine) associateLoan(id uint64, participants ...[20]byte) ([]*types.Event, error) {
	emitted := make([]*types.Event, 0, len(participants))
	for _, addr := range participants {
		ids, err := e.state.ParticipantLoansGet(addr)
		if err != nil {
			return nil, err
		}
		slot := len(ids)
		for slot > 0 && ids[slot-1] == 0 {
			slot--
		}
		if slot < len(ids) {
			ids[slot] = id
		} else {
			ids = append(ids, id)
		}
		if err := e.state.ParticipantLoansPut(addr, ids); err != nil {
			return nil, err
		}
		emitted = append(emitted, NewAssociatedEvent(id, addr))
	}
	return emitted, nil
}

func (e *Engine) disassociateLoan(id uint64, participants ...[20]byte) ([]*types.Event, error) {
	emitted := make([]*types.Event, 0, len(participants))
	for _, addr := range participants {
		ids, err := e.state.ParticipantLoansGet(addr)
		if err != nil {
			return nil, err
		}
		// The logical end is the first tombstoned slot.
		length := len(ids)
		for i, v := range ids {
			if v == 0 {
				length = i
				break
			}
		}
		removed := false
		for i := 0; i < length; {
			if ids[i] != id {
				i++
				continue
			}
			length--
			ids[i] = ids[length]
			ids[length] = 0
			removed = true
		}
		if !removed {
			continue
		}
		if err := e.state.ParticipantLoansPut(addr, ids); err != nil {
			return nil, err
		}
		emitted = append(emitted, NewDisassociatedEvent(id, addr))
	}
	return emitted, nil
}

// LoansOf resolves every live id in the participant's index entry to its loan
// record. Participants with no loans get an empty slice, not an error.
func (e *Engine) LoansOf(participant [20]byte) ([]*Loan, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	ids, err := e.state.ParticipantLoansGet(participant)
	if err != nil {
		return nil, err
	}
	loans := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		record, ok := e.state.LoanGet(id)
		if !ok {
			continue
		}
		loans = append(loans, record)
	}
	return loans, nil
}
