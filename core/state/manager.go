package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"loanchain/native/loan"
	"loanchain/storage"
)

// Manager persists ledger state in a key-value store. Keys are keccak hashes
// of prefixed byte strings, values are RLP encoded. It implements the state
// interfaces consumed by the loan engine and the bank ledger.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	loanPrefix        = []byte("loan:")
	loanSeqKey        = ethcrypto.Keccak256([]byte("loan-seq"))
	allowlistPrefix   = []byte("loan-allow:")
	participantPrefix = []byte("loan-part:")
	balancePrefix     = []byte("balance:")
	genesisDoneKey    = ethcrypto.Keccak256([]byte("genesis-done"))
)

func loanKey(id uint64) []byte {
	buf := make([]byte, len(loanPrefix)+8)
	copy(buf, loanPrefix)
	binary.BigEndian.PutUint64(buf[len(loanPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

func allowlistKey(owner [20]byte) []byte {
	buf := make([]byte, len(allowlistPrefix)+len(owner))
	copy(buf, allowlistPrefix)
	copy(buf[len(allowlistPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}

func participantKey(addr [20]byte) []byte {
	buf := make([]byte, len(participantPrefix)+len(addr))
	copy(buf, participantPrefix)
	copy(buf[len(participantPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func balanceKey(asset string, addr [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(asset)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], asset)
	buf[len(balancePrefix)+len(asset)] = ':'
	copy(buf[len(balancePrefix)+len(asset)+1:], addr[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// LoanPut validates and stores the loan record keyed by its identifier.
func (m *Manager) LoanPut(l *loan.Loan) error {
	sanitized, err := loan.SanitizeLoan(l)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(loanKey(sanitized.ID), encoded)
}

// LoanGet loads the loan record for id. The second return value reports
// whether the record exists.
func (m *Manager) LoanGet(id uint64) (*loan.Loan, bool) {
	data, ok, err := m.get(loanKey(id))
	if err != nil || !ok {
		return nil, false
	}
	record := new(loan.Loan)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false
	}
	return record, true
}

// LoanDelete removes the record for id. Deleting an absent record is not an
// error.
func (m *Manager) LoanDelete(id uint64) error {
	return m.db.Delete(loanKey(id))
}

// LoanNextID increments and persists the monotonic loan counter, returning
// the freshly allocated identifier. Identifiers start at 1 and are never
// reused, even after deletion.
func (m *Manager) LoanNextID() (uint64, error) {
	var current uint64
	data, ok, err := m.get(loanSeqKey)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := rlp.DecodeBytes(data, &current); err != nil {
			return 0, err
		}
	}
	next := current + 1
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(loanSeqKey, encoded); err != nil {
		return 0, err
	}
	return next, nil
}

// AllowlistGet returns the stored proposer sequence for owner, tombstones
// included. Owners with no entries get an empty slice.
func (m *Manager) AllowlistGet(owner [20]byte) ([][20]byte, error) {
	data, ok, err := m.get(allowlistKey(owner))
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][20]byte{}, nil
	}
	var list [][20]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AllowlistPut stores the raw proposer sequence for owner.
func (m *Manager) AllowlistPut(owner [20]byte, list [][20]byte) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(allowlistKey(owner), encoded)
}

// ParticipantLoansGet returns the stored loan id sequence for addr,
// tombstones included.
func (m *Manager) ParticipantLoansGet(addr [20]byte) ([]uint64, error) {
	data, ok, err := m.get(participantKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return []uint64{}, nil
	}
	var ids []uint64
	if err := rlp.DecodeBytes(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ParticipantLoansPut stores the raw loan id sequence for addr.
func (m *Manager) ParticipantLoansPut(addr [20]byte, ids []uint64) error {
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return m.db.Put(participantKey(addr), encoded)
}

// BalanceGet returns the balance of addr for asset, zero when absent.
func (m *Manager) BalanceGet(asset string, addr [20]byte) (*big.Int, error) {
	data, ok, err := m.get(balanceKey(asset, addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// BalancePut stores the balance of addr for asset. Negative balances are
// rejected.
func (m *Manager) BalancePut(asset string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must not be negative")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(balanceKey(asset, addr), encoded)
}

// GenesisDone reports whether initial balances were already seeded.
func (m *Manager) GenesisDone() (bool, error) {
	_, ok, err := m.get(genesisDoneKey)
	return ok, err
}

// MarkGenesisDone records that initial balances were seeded.
func (m *Manager) MarkGenesisDone() error {
	return m.db.Put(genesisDoneKey, []byte{0x01})
}
