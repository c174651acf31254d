package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/google/uuid"
)

// Emitter stamps audit events and hands them to the sink. A nil sink drops
// events.
type Emitter struct {
	Sink  ports.AuditSink
	Now   func() time.Time
	NewID func() string
}

func (e Emitter) Emit(ctx context.Context, typ locker.AuditType, n locker.Number, card, details string) {
	if e.Sink == nil {
		return
	}
	nowFn := e.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idFn := e.NewID
	if idFn == nil {
		idFn = uuid.NewString
	}
	e.Sink.Emit(ctx, locker.AuditEvent{
		ID:         idFn(),
		OccurredAt: nowFn().UTC(),
		Type:       typ,
		Locker:     n,
		Card:       card,
		Details:    details,
	})
}

// ActuationFailed records a failed unlock call: a controller status code is
// an ERROR, a network failure or timeout is CRITICAL.
func (e Emitter) ActuationFailed(ctx context.Context, n locker.Number, card string, err error) {
	var rejected *ports.ActuatorRejectedError
	if errors.As(err, &rejected) {
		e.Emit(ctx, locker.AuditError, n, card, fmt.Sprintf("locker %d: controller returned status %d", n, rejected.StatusCode))
		return
	}
	e.Emit(ctx, locker.AuditCritical, n, card, fmt.Sprintf("locker %d: network error: %v", n, err))
}

// Fanout delivers each event to every sink in order.
type Fanout []ports.AuditSink

func (f Fanout) Emit(ctx context.Context, ev locker.AuditEvent) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}
