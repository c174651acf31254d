// Package logsink mirrors audit events to the process log.
package logsink

import (
	"context"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

type Sink struct{}

func (Sink) Emit(ctx context.Context, ev locker.AuditEvent) {
	switch ev.Type {
	case locker.AuditCritical:
		hlog.CtxErrorf(ctx, "[%s] locker=%d card=%q %s", ev.Type, ev.Locker, ev.Card, ev.Details)
	case locker.AuditError:
		hlog.CtxWarnf(ctx, "[%s] locker=%d card=%q %s", ev.Type, ev.Locker, ev.Card, ev.Details)
	default:
		hlog.CtxInfof(ctx, "[%s] locker=%d card=%q %s", ev.Type, ev.Locker, ev.Card, ev.Details)
	}
}

var _ ports.AuditSink = Sink{}
