package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

const DefaultOpenGrace = 5 * time.Second

// Store owns the locker to card mapping and the visibly-open set. Every
// assignment mutation is persisted under the lock; a failed save rolls the
// in-memory change back.
type Store struct {
	repo  ports.AssignmentRepository
	grace time.Duration

	mu     sync.RWMutex
	owners locker.Assignments
	open   map[locker.Number]uint64
	timers map[locker.Number]*time.Timer
	gen    uint64
}

func NewStore(repo ports.AssignmentRepository, grace time.Duration) *Store {
	if grace <= 0 {
		grace = DefaultOpenGrace
	}
	return &Store{
		repo:   repo,
		grace:  grace,
		owners: locker.Assignments{},
		open:   map[locker.Number]uint64{},
		timers: map[locker.Number]*time.Timer{},
	}
}

// Load replaces the in-memory mapping with the persisted snapshot. Entries
// outside lockers or without a card are dropped so a stale file cannot
// count against a card; the next save writes the cleaned mapping.
func (s *Store) Load(ctx context.Context, lockers locker.Range) error {
	if s.repo == nil {
		return nil
	}
	snapshot, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load assignments: %w", ports.ErrPersistence, err)
	}
	owners := make(locker.Assignments, len(snapshot))
	for n, card := range snapshot {
		if !lockers.Valid(n) || card == "" {
			hlog.CtxWarnf(ctx, "dropping stored assignment of locker %d to %q: outside 1..%d or empty", n, card, lockers.Count)
			continue
		}
		owners[n] = card
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = owners
	return nil
}

func (s *Store) Assign(ctx context.Context, n locker.Number, card string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, owned := s.owners[n]; owned {
		return ports.ErrConflict
	}
	s.owners[n] = card
	if err := s.persistLocked(ctx); err != nil {
		delete(s.owners, n)
		return err
	}
	return nil
}

// Bind overwrites the owner without a conflict check.
func (s *Store) Bind(ctx context.Context, n locker.Number, card string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.owners[n]
	s.owners[n] = card
	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(n, prev, had)
		return "", false, err
	}
	return prev, had, nil
}

func (s *Store) Release(ctx context.Context, n locker.Number) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.owners[n]
	if !had {
		return "", false, nil
	}
	delete(s.owners, n)
	if err := s.persistLocked(ctx); err != nil {
		s.owners[n] = prev
		return "", false, err
	}
	return prev, true, nil
}

func (s *Store) OwnerOf(n locker.Number) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.owners[n]
	return card, ok
}

func (s *Store) LockersOwnedBy(card string) []locker.Number {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []locker.Number
	for n, owner := range s.owners {
		if owner == card {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) Snapshot() locker.Assignments {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners.Clone()
}

// MarkVisiblyOpen adds n to the visibly-open set. A repeated call before
// expiry replaces the pending expiry instead of stacking a second one.
func (s *Store) MarkVisiblyOpen(n locker.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.timers[n]; t != nil {
		t.Stop()
	}
	s.gen++
	gen := s.gen
	s.open[n] = gen
	s.timers[n] = time.AfterFunc(s.grace, func() { s.expire(n, gen) })
}

func (s *Store) IsVisiblyOpen(n locker.Number) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.open[n]
	return ok
}

func (s *Store) VisiblyOpen() []locker.Number {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]locker.Number, 0, len(s.open))
	for n := range s.open {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops pending expiry timers.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n, t := range s.timers {
		t.Stop()
		delete(s.timers, n)
	}
}

func (s *Store) expire(n locker.Number, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a newer MarkVisiblyOpen owns the entry
	if s.open[n] != gen {
		return
	}
	delete(s.open, n)
	delete(s.timers, n)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, s.owners.Clone()); err != nil {
		return fmt.Errorf("%w: save assignments: %w", ports.ErrPersistence, err)
	}
	return nil
}

func (s *Store) restoreLocked(n locker.Number, prev string, had bool) {
	if had {
		s.owners[n] = prev
		return
	}
	delete(s.owners, n)
}
