package bank

import (
	"errors"
	"math/big"
	"testing"
)

type mockLedgerState struct {
	balances map[string]map[[20]byte]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{balances: make(map[string]map[[20]byte]*big.Int)}
}

func (m *mockLedgerState) BalanceGet(asset string, addr [20]byte) (*big.Int, error) {
	if perAddr, ok := m.balances[asset]; ok {
		if balance, ok := perAddr[addr]; ok {
			return new(big.Int).Set(balance), nil
		}
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) BalancePut(asset string, addr [20]byte, amount *big.Int) error {
	perAddr, ok := m.balances[asset]
	if !ok {
		perAddr = make(map[[20]byte]*big.Int)
		m.balances[asset] = perAddr
	}
	perAddr[addr] = new(big.Int).Set(amount)
	return nil
}

func newTestLedger() (*Ledger, *mockLedgerState) {
	state := newMockLedgerState()
	ledger := NewLedger()
	ledger.SetState(state)
	return ledger, state
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestTransferMovesBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	payer := addr(0x01)
	payee := addr(0x02)

	if err := ledger.Mint(payer, "tok", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(payer, payee, "tok", big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	from, err := ledger.BalanceOf(payer, "TOK")
	if err != nil || from.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected payer balance 60, got %s (%v)", from, err)
	}
	to, err := ledger.BalanceOf(payee, "tok")
	if err != nil || to.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected payee balance 40, got %s (%v)", to, err)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ledger, _ := newTestLedger()
	payer := addr(0x01)
	payee := addr(0x02)

	if err := ledger.Mint(payer, "tok", big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := ledger.Transfer(payer, payee, "tok", big.NewInt(11))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	balance, _ := ledger.BalanceOf(payer, "tok")
	if balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer must not change balances, got %s", balance)
	}
}

func TestTransferValidation(t *testing.T) {
	ledger, _ := newTestLedger()
	payer := addr(0x01)
	payee := addr(0x02)

	if err := ledger.Transfer(payer, payee, "  ", big.NewInt(1)); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected invalid asset, got %v", err)
	}
	if err := ledger.Transfer(payer, payee, "tok", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := ledger.Transfer(payer, payee, "tok", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for nil, got %v", err)
	}
}

func TestSelfTransferKeepsBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	payer := addr(0x01)

	if err := ledger.Mint(payer, "tok", big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(payer, payer, "tok", big.NewInt(3)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	balance, _ := ledger.BalanceOf(payer, "tok")
	if balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("self transfer must not change the balance, got %s", balance)
	}
	if err := ledger.Transfer(payer, payer, "tok", big.NewInt(6)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("self transfer still checks the balance, got %v", err)
	}
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func TestPausedLedgerRejectsTransfers(t *testing.T) {
	ledger, _ := newTestLedger()
	ledger.SetPauses(pausedModules{moduleName: true})
	payer := addr(0x01)
	if err := ledger.Transfer(payer, addr(0x02), "tok", big.NewInt(1)); err == nil {
		t.Fatalf("expected paused ledger to reject transfers")
	}
}
