package audit

import (
	"context"
	"errors"
	"strings"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var ErrInvalidRequest = errors.New("invalid audit request")

type Request struct {
	Limit int
	Type  string
}

type Response struct {
	Events []locker.AuditEvent `json:"events"`
}

type UseCase struct {
	Log ports.AuditLog
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	if u.Log == nil {
		return Response{}, ports.ErrNotFound
	}
	q := ports.AuditQuery{Limit: req.Limit}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if t := strings.ToUpper(strings.TrimSpace(req.Type)); t != "" {
		q.Type = locker.AuditType(t)
		if !q.Type.Valid() {
			return Response{}, ErrInvalidRequest
		}
	}
	events, err := u.Log.List(ctx, q)
	if err != nil {
		return Response{}, err
	}
	if events == nil {
		events = []locker.AuditEvent{}
	}
	return Response{Events: events}, nil
}
