package intake

import (
	"context"
	"fmt"

	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

type Presenter interface {
	Present(card string)
}

// Request carries what the reader webhook delivered. FormCardID wins over
// RawBody when both are set.
type Request struct {
	FormCardID string
	RawBody    string
}

type Response struct {
	CardID   string
	Accepted bool
}

type UseCase struct {
	Session Presenter
	Audit   audit.Emitter
	Metrics ports.LockerMetrics
}

// Execute never fails: an empty payload is accepted without a state change.
func (u UseCase) Execute(ctx context.Context, req Request) Response {
	raw := req.FormCardID
	if raw == "" {
		raw = req.RawBody
	}
	card := locker.NormalizeCardID(raw)
	if card == "" {
		return Response{}
	}

	u.Session.Present(card)
	if u.Metrics != nil {
		u.Metrics.RecordCardRead()
	}
	u.Audit.Emit(ctx, locker.AuditCardRead, 0, card, fmt.Sprintf("card %s read", card))
	hlog.CtxDebugf(ctx, "card %s presented", card)
	return Response{CardID: card, Accepted: true}
}
