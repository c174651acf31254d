package ports

import (
	"context"

	"lockerkiosk/internal/domain/locker"
)

// Actuator performs a single unlock call. Failures are one of
// ErrActuatorTimeout, ErrActuatorUnreachable or *ActuatorRejectedError.
type Actuator interface {
	Open(ctx context.Context, n locker.Number) error
}
