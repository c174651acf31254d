package ports

import (
	"context"

	"lockerkiosk/internal/domain/locker"
)

// AssignmentRepository stores the full locker to card snapshot. Save must
// replace the previous snapshot atomically.
type AssignmentRepository interface {
	Load(ctx context.Context) (locker.Assignments, error)
	Save(ctx context.Context, snapshot locker.Assignments) error
}

type AuditSink interface {
	Emit(ctx context.Context, event locker.AuditEvent)
}

type AuditQuery struct {
	Limit int
	Type  locker.AuditType
}

type AuditLog interface {
	List(ctx context.Context, q AuditQuery) ([]locker.AuditEvent, error)
}
