package coordinator

import (
	"context"
	"sync"

	"novafreight-system/internal/ledger"
	"novafreight-system/internal/platform/apierr"
)

type allocKey struct {
	cargoID int64
	unitID  int64
}

// MemoryStore is an in-process Store with transactional rollback, used by
// tests. All access funnels through one mutex, so an InTx body sees and
// mutates a consistent snapshot.
type MemoryStore struct {
	mu           sync.Mutex
	units        map[int64]ledger.Unit
	allocations  map[allocKey]Allocation
	transactions []Transaction
	nextTxnID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:       make(map[int64]ledger.Unit),
		allocations: make(map[allocKey]Allocation),
		nextTxnID:   1,
	}
}

func (s *MemoryStore) SeedUnit(u ledger.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = u
}

func (s *MemoryStore) SeedAllocation(a Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[allocKey{a.CargoID, a.StorageUnitID}] = a
}

func (s *MemoryStore) UnitSnapshot(unitID int64) (ledger.Unit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	return u, ok
}

func (s *MemoryStore) AllocationQuantity(cargoID, unitID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocations[allocKey{cargoID, unitID}].Quantity
}

func (s *MemoryStore) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// --- Store ---

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(&memTx{s: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) WithUnit(ctx context.Context, unitID int64, fn func(u *ledger.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withUnitLocked(unitID, fn)
}

func (s *MemoryStore) WithUnitPair(ctx context.Context, aID, bID int64, fn func(a, b *ledger.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withUnitPairLocked(aID, bID, fn)
}

func (s *MemoryStore) AllocationsForUnit(ctx context.Context, unitID int64) ([]Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocationsForUnitLocked(unitID), nil
}

// --- TxStore, mutex already held by InTx ---

type memTx struct {
	s *MemoryStore
}

func (t *memTx) WithUnit(ctx context.Context, unitID int64, fn func(u *ledger.Unit) error) error {
	return t.s.withUnitLocked(unitID, fn)
}

func (t *memTx) WithUnitPair(ctx context.Context, aID, bID int64, fn func(a, b *ledger.Unit) error) error {
	return t.s.withUnitPairLocked(aID, bID, fn)
}

func (t *memTx) Allocation(ctx context.Context, cargoID, unitID int64) (*Allocation, error) {
	a, ok := t.s.allocations[allocKey{cargoID, unitID}]
	if !ok {
		return nil, nil
	}
	out := a
	return &out, nil
}

func (t *memTx) SaveAllocation(ctx context.Context, a *Allocation) error {
	t.s.allocations[allocKey{a.CargoID, a.StorageUnitID}] = *a
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, txn *Transaction) error {
	txn.ID = t.s.nextTxnID
	t.s.nextTxnID++
	t.s.transactions = append(t.s.transactions, *txn)
	return nil
}

// --- locked internals ---

func (s *MemoryStore) withUnitLocked(unitID int64, fn func(u *ledger.Unit) error) error {
	u, ok := s.units[unitID]
	if !ok {
		return apierr.NotFound("storage unit", unitID)
	}
	scratch := u
	if err := fn(&scratch); err != nil {
		return err
	}
	s.units[unitID] = scratch
	return nil
}

func (s *MemoryStore) withUnitPairLocked(aID, bID int64, fn func(a, b *ledger.Unit) error) error {
	ua, ok := s.units[aID]
	if !ok {
		return apierr.NotFound("storage unit", aID)
	}
	ub, ok := s.units[bID]
	if !ok {
		return apierr.NotFound("storage unit", bID)
	}
	scratchA, scratchB := ua, ub
	if err := fn(&scratchA, &scratchB); err != nil {
		return err
	}
	s.units[aID] = scratchA
	s.units[bID] = scratchB
	return nil
}

func (s *MemoryStore) allocationsForUnitLocked(unitID int64) []Allocation {
	var out []Allocation
	for k, a := range s.allocations {
		if k.unitID == unitID {
			out = append(out, a)
		}
	}
	return out
}

type memSnapshot struct {
	units        map[int64]ledger.Unit
	allocations  map[allocKey]Allocation
	transactions []Transaction
	nextTxnID    int64
}

func (s *MemoryStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		units:        make(map[int64]ledger.Unit, len(s.units)),
		allocations:  make(map[allocKey]Allocation, len(s.allocations)),
		transactions: make([]Transaction, len(s.transactions)),
		nextTxnID:    s.nextTxnID,
	}
	for k, v := range s.units {
		snap.units[k] = v
	}
	for k, v := range s.allocations {
		snap.allocations[k] = v
	}
	copy(snap.transactions, s.transactions)
	return snap
}

func (s *MemoryStore) restoreLocked(snap memSnapshot) {
	s.units = snap.units
	s.allocations = snap.allocations
	s.transactions = snap.transactions
	s.nextTxnID = snap.nextTxnID
}
