package memory

import (
	"sync"

	"lockerkiosk/internal/domain/locker"
)

type Store struct {
	mu          sync.RWMutex
	assignments locker.Assignments
	events      []locker.AuditEvent
	saves       int
	saveErr     error
}

func NewStore() *Store {
	return &Store{
		assignments: locker.Assignments{},
	}
}

func (s *Store) SeedAssignments(a locker.Assignments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = a.Clone()
}

// FailSaves makes every following Save return err until called with nil.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
