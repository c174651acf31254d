package ports

import "errors"

type Outcome string

const (
	OutcomeAcquired Outcome = "acquired"
	OutcomeOpened   Outcome = "opened"
	OutcomeRejected Outcome = "rejected"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

type LockerMetrics interface {
	RecordSelection(outcome Outcome)
	RecordActuation(err error)
	RecordCardRead()
}

// ActuationResult buckets an actuator error into a stable label.
func ActuationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrActuatorTimeout):
		return "timeout"
	case errors.Is(err, ErrActuatorRejected):
		return "rejected"
	case errors.Is(err, ErrActuatorUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
