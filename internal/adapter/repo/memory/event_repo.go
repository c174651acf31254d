package memory

import (
	"context"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"
)

type EventRepo struct {
	store *Store
}

func NewEventRepo(store *Store) EventRepo {
	return EventRepo{store: store}
}

func (r EventRepo) Emit(_ context.Context, event locker.AuditEvent) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, event)
}

// List returns newest events first.
func (r EventRepo) List(_ context.Context, q ports.AuditQuery) ([]locker.AuditEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]locker.AuditEvent, 0, len(r.store.events))
	for i := len(r.store.events) - 1; i >= 0; i-- {
		e := r.store.events[i]
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy in emission order.
func (r EventRepo) Events() []locker.AuditEvent {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]locker.AuditEvent, len(r.store.events))
	copy(out, r.store.events)
	return out
}
