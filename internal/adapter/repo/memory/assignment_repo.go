package memory

import (
	"context"

	"lockerkiosk/internal/domain/locker"
)

type AssignmentRepo struct {
	store *Store
}

func NewAssignmentRepo(store *Store) AssignmentRepo {
	return AssignmentRepo{store: store}
}

func (r AssignmentRepo) Load(_ context.Context) (locker.Assignments, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.assignments.Clone(), nil
}

func (r AssignmentRepo) Save(_ context.Context, snapshot locker.Assignments) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.saveErr != nil {
		return r.store.saveErr
	}
	r.store.assignments = snapshot.Clone()
	r.store.saves++
	return nil
}
