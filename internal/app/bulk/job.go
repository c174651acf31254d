// Package bulk implements the emergency "open all" release: every locker
// is unlocked in ascending order with spacing between controller calls.
// Ownership is never touched.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"golang.org/x/time/rate"
)

const DefaultDelay = 300 * time.Millisecond

var ErrBulkRunning = errors.New("bulk open already running")

type VisibleMarker interface {
	MarkVisiblyOpen(n locker.Number)
}

type Config struct {
	Actuator ports.Actuator
	Store    VisibleMarker
	Audit    audit.Emitter
	Metrics  ports.LockerMetrics
	Lockers  locker.Range
	Delay    time.Duration
	// Lifetime bounds background runs started with Start.
	Lifetime context.Context
}

type Report struct {
	Attempted int             `json:"attempted"`
	Opened    []locker.Number `json:"opened"`
	Failed    []locker.Number `json:"failed"`
	Cancelled bool            `json:"cancelled"`
}

type Job struct {
	cfg     Config
	running atomic.Bool
	done    chan Report
}

func NewJob(cfg Config) *Job {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Lockers.Count <= 0 {
		cfg.Lockers.Count = locker.DefaultCount
	}
	if cfg.Lifetime == nil {
		cfg.Lifetime = context.Background()
	}
	return &Job{cfg: cfg}
}

func (j *Job) Running() bool {
	return j.running.Load()
}

// Run opens every locker and blocks until done or ctx is cancelled.
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Report{}, ErrBulkRunning
	}
	defer j.running.Store(false)
	return j.run(ctx), nil
}

// Start runs the job in the background under the configured lifetime. The
// returned channel receives the report once.
func (j *Job) Start() (<-chan Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrBulkRunning
	}
	out := make(chan Report, 1)
	go func() {
		defer j.running.Store(false)
		out <- j.run(j.cfg.Lifetime)
		close(out)
	}()
	return out, nil
}

func (j *Job) run(ctx context.Context) Report {
	rep := Report{Opened: []locker.Number{}, Failed: []locker.Number{}}
	j.cfg.Audit.Emit(ctx, locker.AuditAdmin, 0, "", fmt.Sprintf("emergency open of %d lockers started", j.cfg.Lockers.Count))

	for i := 1; i <= j.cfg.Lockers.Count; i++ {
		n := locker.Number(i)
		if i > 1 {
			if err := settle(ctx, j.cfg.Delay); err != nil {
				rep.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		rep.Attempted++
		err := j.cfg.Actuator.Open(ctx, n)
		if j.cfg.Metrics != nil {
			j.cfg.Metrics.RecordActuation(err)
		}
		if err != nil {
			hlog.CtxWarnf(ctx, "bulk open locker %d: %v", n, err)
			j.cfg.Audit.ActuationFailed(ctx, n, "", err)
			rep.Failed = append(rep.Failed, n)
			continue
		}
		if j.cfg.Store != nil {
			j.cfg.Store.MarkVisiblyOpen(n)
		}
		rep.Opened = append(rep.Opened, n)
	}

	if rep.Cancelled {
		hlog.CtxWarnf(ctx, "bulk open cancelled after %d of %d lockers", rep.Attempted, j.cfg.Lockers.Count)
		j.cfg.Audit.Emit(context.WithoutCancel(ctx), locker.AuditSystem, 0, "", fmt.Sprintf("emergency open cancelled after %d lockers", rep.Attempted))
		return rep
	}
	hlog.CtxInfof(ctx, "bulk open finished: %d opened, %d failed", len(rep.Opened), len(rep.Failed))
	j.cfg.Audit.Emit(ctx, locker.AuditSystem, 0, "", fmt.Sprintf("emergency open finished: %d opened, %d failed", len(rep.Opened), len(rep.Failed)))
	return rep
}

// settle blocks for d counted from now, so the gap follows the end of the
// previous controller call however long it took.
func settle(ctx context.Context, d time.Duration) error {
	gap := rate.NewLimiter(rate.Every(d), 1)
	gap.Allow()
	return gap.Wait(ctx)
}
