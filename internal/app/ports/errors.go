package ports

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence failure")

	ErrActuatorTimeout     = errors.New("actuator timeout")
	ErrActuatorUnreachable = errors.New("actuator unreachable")
	ErrActuatorRejected    = errors.New("actuator rejected")
)

type ActuatorRejectedError struct {
	StatusCode int
}

func (e *ActuatorRejectedError) Error() string {
	return fmt.Sprintf("actuator rejected: status %d", e.StatusCode)
}

func (e *ActuatorRejectedError) Is(target error) bool {
	return target == ErrActuatorRejected
}
