package loan

import (
	"math/big"
	"testing"
)

func TestParticipantIndexSwapRemove(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	lender := newTestAddress(0x01)
	borrower := newTestAddress(0x02)

	first := mustPropose(t, engine, lender, borrower, "tok", 10)
	second, err := engine.Propose(lender, borrower, "tok", big.NewInt(20))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	third, err := engine.Propose(lender, borrower, "tok", big.NewInt(30))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	if err := engine.CancelPending(lender, second); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	// The last live id backfills the vacated slot and its old slot tombstones.
	for _, addr := range [][20]byte{lender, borrower} {
		ids := state.participants[addr]
		if len(ids) != 3 || ids[0] != first || ids[1] != third || ids[2] != 0 {
			t.Fatalf("expected [%d %d 0], got %v", first, third, ids)
		}
	}
}

func TestParticipantIndexReusesTombstoneTail(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	lender := newTestAddress(0x01)
	borrower := newTestAddress(0x02)

	first := mustPropose(t, engine, lender, borrower, "tok", 10)
	second, err := engine.Propose(lender, borrower, "tok", big.NewInt(20))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := engine.CancelPending(borrower, second); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	next, err := engine.Propose(lender, borrower, "tok", big.NewInt(30))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	for _, addr := range [][20]byte{lender, borrower} {
		ids := state.participants[addr]
		if len(ids) != 2 || ids[0] != first || ids[1] != next {
			t.Fatalf("expected [%d %d], got %v", first, next, ids)
		}
	}
}

func TestLoansOfSkipsTombstonesAndMissingRecords(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	lender := newTestAddress(0x01)
	borrower := newTestAddress(0x02)

	id := mustPropose(t, engine, lender, borrower, "tok", 10)
	// A stale id with no backing record and a tombstone are both skipped.
	state.participants[lender] = []uint64{id, 99, 0}

	loans, err := engine.LoansOf(lender)
	if err != nil {
		t.Fatalf("loans of: %v", err)
	}
	if len(loans) != 1 || loans[0].ID != id {
		t.Fatalf("expected only loan %d, got %v", id, loans)
	}
}

func TestLoansOfUnknownParticipantEmpty(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	loans, err := engine.LoansOf(newTestAddress(0x42))
	if err != nil {
		t.Fatalf("loans of: %v", err)
	}
	if loans == nil || len(loans) != 0 {
		t.Fatalf("expected empty slice, got %v", loans)
	}
}
