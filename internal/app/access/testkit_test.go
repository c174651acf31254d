package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"lockerkiosk/internal/adapter/repo/memory"
	"lockerkiosk/internal/app/assignment"
	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/app/session"
	"lockerkiosk/internal/domain/locker"
)

type fakeActuator struct {
	mu    sync.Mutex
	calls []locker.Number
	errs  map[locker.Number]error
	delay time.Duration
}

func (a *fakeActuator) Open(_ context.Context, n locker.Number) error {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, n)
	return a.errs[n]
}

func (a *fakeActuator) Calls() []locker.Number {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]locker.Number(nil), a.calls...)
}

type harness struct {
	engine   *Engine
	store    *assignment.Store
	mem      *memory.Store
	session  *session.CardSession
	actuator *fakeActuator
	events   memory.EventRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := memory.NewStore()
	store := assignment.NewStore(memory.NewAssignmentRepo(mem), time.Minute)
	t.Cleanup(store.Close)
	sess := session.New()
	act := &fakeActuator{errs: map[locker.Number]error{}}
	events := memory.NewEventRepo(mem)
	engine := NewEngine(Config{
		Store:    store,
		Session:  sess,
		Actuator: act,
		Audit:    audit.Emitter{Sink: events},
		Lockers:  locker.Range{Count: locker.DefaultCount},
	})
	return &harness{engine: engine, store: store, mem: mem, session: sess, actuator: act, events: events}
}

func (h *harness) eventsOfType(typ locker.AuditType) []locker.AuditEvent {
	var out []locker.AuditEvent
	for _, e := range h.events.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

var _ ports.Actuator = (*fakeActuator)(nil)
var _ AssignmentStore = (*assignment.Store)(nil)
var _ CardSession = (*session.CardSession)(nil)
