package loan

import (
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
)

// lockTable hands out one mutex per state key so lifecycle transitions are
// serialized per loan id while index entries are serialized per owning
// address, independently of each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func addrLockKey(addr [20]byte) string { return "addr:" + hex.EncodeToString(addr[:]) }

func loanLockKey(id uint64) string { return "loan:" + strconv.FormatUint(id, 10) }

func (t *lockTable) handle(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}

// acquire locks the deduplicated keys in sorted order and returns the release
// function. Address keys sort ahead of loan keys, so every operation that
// touches both an index entry and a loan record takes its locks in the same
// global order.
func (t *lockTable) acquire(keys ...string) func() {
	unique := keys[:0:0]
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)
	held := make([]*sync.Mutex, 0, len(unique))
	for _, key := range unique {
		m := t.handle(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
