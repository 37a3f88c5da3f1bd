package ledger

import (
	"context"
	"sync"

	"novafreight-system/internal/platform/apierr"
)

// MemoryStore keeps unit counters in process memory behind a per-unit mutex.
// Used by tests and by single-node deployments that have no database.
type MemoryStore struct {
	mu    sync.Mutex
	units map[int64]*unitEntry
}

type unitEntry struct {
	mu   sync.Mutex
	unit Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: make(map[int64]*unitEntry)}
}

func (s *MemoryStore) Seed(u Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = &unitEntry{unit: u}
}

func (s *MemoryStore) Snapshot(unitID int64) (Unit, bool) {
	s.mu.Lock()
	e, ok := s.units[unitID]
	s.mu.Unlock()
	if !ok {
		return Unit{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unit, true
}

func (s *MemoryStore) entry(unitID int64) (*unitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.units[unitID]
	if !ok {
		return nil, apierr.NotFound("storage unit", unitID)
	}
	return e, nil
}

func (s *MemoryStore) WithUnit(ctx context.Context, unitID int64, fn func(u *Unit) error) error {
	e, err := s.entry(unitID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	scratch := e.unit
	if err := fn(&scratch); err != nil {
		return err
	}
	e.unit = scratch
	return nil
}

func (s *MemoryStore) WithUnitPair(ctx context.Context, aID, bID int64, fn func(a, b *Unit) error) error {
	ea, err := s.entry(aID)
	if err != nil {
		return err
	}
	eb, err := s.entry(bID)
	if err != nil {
		return err
	}

	// Lock in ascending id order so opposing transfers cannot deadlock.
	first, second := ea, eb
	if bID < aID {
		first, second = eb, ea
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	scratchA, scratchB := ea.unit, eb.unit
	if err := fn(&scratchA, &scratchB); err != nil {
		return err
	}
	ea.unit = scratchA
	eb.unit = scratchB
	return nil
}
