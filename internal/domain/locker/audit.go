package locker

import "time"

type AuditType string

const (
	AuditSystem   AuditType = "SYSTEM"
	AuditCardRead AuditType = "CARD_READ"
	AuditUser     AuditType = "USER"
	AuditAdmin    AuditType = "ADMIN"
	AuditError    AuditType = "ERROR"
	AuditCritical AuditType = "CRITICAL"
)

func (t AuditType) Valid() bool {
	switch t {
	case AuditSystem, AuditCardRead, AuditUser, AuditAdmin, AuditError, AuditCritical:
		return true
	default:
		return false
	}
}

type AuditEvent struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       AuditType `json:"type"`
	Locker     Number    `json:"locker,omitempty"`
	Card       string    `json:"card,omitempty"`
	Details    string    `json:"details"`
}
