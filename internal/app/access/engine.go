package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

var (
	ErrInvalidSelection = errors.New("invalid locker selection")
	ErrNoCardPresented  = errors.New("no card presented")
	ErrNotYourLocker    = errors.New("not your locker")
)

type AssignmentStore interface {
	Assign(ctx context.Context, n locker.Number, card string) error
	Bind(ctx context.Context, n locker.Number, card string) (string, bool, error)
	Release(ctx context.Context, n locker.Number) (string, bool, error)
	OwnerOf(n locker.Number) (string, bool)
	LockersOwnedBy(card string) []locker.Number
	MarkVisiblyOpen(n locker.Number)
}

type CardSession interface {
	Current() (string, bool)
	ConsumeIf(card string) bool
}

type Config struct {
	Store    AssignmentStore
	Session  CardSession
	Actuator ports.Actuator
	Audit    audit.Emitter
	Metrics  ports.LockerMetrics
	Lockers  locker.Range
}

type Result struct {
	Outcome ports.Outcome `json:"outcome"`
	Locker  locker.Number `json:"locker"`
	Card    string        `json:"card,omitempty"`
	Message string        `json:"message,omitempty"`
}

type AdminResult struct {
	Locker        locker.Number `json:"locker"`
	Card          string        `json:"card,omitempty"`
	PreviousOwner string        `json:"previous_owner,omitempty"`
}

// Engine turns a presented card plus a locker selection into an assign,
// open or reject decision.
type Engine struct {
	store    AssignmentStore
	session  CardSession
	actuator ports.Actuator
	audit    audit.Emitter
	metrics  ports.LockerMetrics
	lockers  locker.Range
	locks    *keyedMutex
}

func NewEngine(cfg Config) *Engine {
	if cfg.Lockers.Count <= 0 {
		cfg.Lockers.Count = locker.DefaultCount
	}
	return &Engine{
		store:    cfg.Store,
		session:  cfg.Session,
		actuator: cfg.Actuator,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		lockers:  cfg.Lockers,
		locks:    newKeyedMutex(),
	}
}

func (e *Engine) Lockers() locker.Range {
	return e.lockers
}

// SelectLocker handles a locker button press. A rejected or failed attempt
// leaves the card presented so the user can retry.
func (e *Engine) SelectLocker(ctx context.Context, n locker.Number) (Result, error) {
	if !e.lockers.Valid(n) {
		return Result{}, ErrInvalidSelection
	}
	card, ok := e.session.Current()
	if !ok {
		return Result{}, ErrNoCardPresented
	}

	unlock, err := e.locks.lock(ctx, lockerKey(n), cardKey(card))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	// A press that queued behind another action on the same card may find
	// the card already spent.
	if current, ok := e.session.Current(); !ok || current != card {
		return Result{}, ErrNoCardPresented
	}

	owner, owned := e.store.OwnerOf(n)
	alreadyOwns := len(e.store.LockersOwnedBy(card)) > 0

	switch {
	case !owned && !alreadyOwns:
		return e.acquire(ctx, n, card)
	case owned && owner == card:
		return e.openOwn(ctx, n, card)
	default:
		hlog.CtxInfof(ctx, "locker %d rejected for card %s", n, card)
		e.recordSelection(ports.OutcomeRejected)
		return Result{Outcome: ports.OutcomeRejected, Locker: n, Card: card, Message: ErrNotYourLocker.Error()}, ErrNotYourLocker
	}
}

func (e *Engine) acquire(ctx context.Context, n locker.Number, card string) (Result, error) {
	if err := e.actuate(ctx, n, card); err != nil {
		e.recordSelection(ports.OutcomeFailed)
		return Result{Outcome: ports.OutcomeFailed, Locker: n, Card: card, Message: err.Error()}, err
	}
	e.store.MarkVisiblyOpen(n)

	if err := e.store.Assign(ctx, n, card); err != nil {
		outcome := ports.OutcomeFailed
		if errors.Is(err, ports.ErrConflict) {
			outcome = ports.OutcomeConflict
		}
		hlog.CtxErrorf(ctx, "assign locker %d to card %s: %v", n, card, err)
		e.audit.Emit(ctx, locker.AuditError, n, card, fmt.Sprintf("locker %d: assign to %s failed: %v", n, card, err))
		e.recordSelection(outcome)
		return Result{Outcome: outcome, Locker: n, Card: card, Message: err.Error()}, err
	}

	e.session.ConsumeIf(card)
	e.audit.Emit(ctx, locker.AuditUser, n, card, fmt.Sprintf("acquired locker %d", n))
	e.recordSelection(ports.OutcomeAcquired)
	hlog.CtxInfof(ctx, "card %s acquired locker %d", card, n)
	return Result{Outcome: ports.OutcomeAcquired, Locker: n, Card: card}, nil
}

func (e *Engine) openOwn(ctx context.Context, n locker.Number, card string) (Result, error) {
	if err := e.actuate(ctx, n, card); err != nil {
		e.recordSelection(ports.OutcomeFailed)
		return Result{Outcome: ports.OutcomeFailed, Locker: n, Card: card, Message: err.Error()}, err
	}
	e.store.MarkVisiblyOpen(n)
	e.session.ConsumeIf(card)
	e.audit.Emit(ctx, locker.AuditUser, n, card, fmt.Sprintf("opened own locker %d", n))
	e.recordSelection(ports.OutcomeOpened)
	hlog.CtxInfof(ctx, "card %s opened locker %d", card, n)
	return Result{Outcome: ports.OutcomeOpened, Locker: n, Card: card}, nil
}

// AdminBind force-assigns a locker; the last writer wins.
func (e *Engine) AdminBind(ctx context.Context, n locker.Number, card string) (AdminResult, error) {
	card = strings.TrimSpace(card)
	if !e.lockers.Valid(n) || card == "" {
		return AdminResult{}, ErrInvalidSelection
	}
	unlock, err := e.locks.lock(ctx, lockerKey(n))
	if err != nil {
		return AdminResult{}, err
	}
	defer unlock()

	prev, _, err := e.store.Bind(ctx, n, card)
	if err != nil {
		hlog.CtxErrorf(ctx, "bind locker %d to %s: %v", n, card, err)
		e.audit.Emit(ctx, locker.AuditError, n, card, fmt.Sprintf("locker %d: bind to %s failed: %v", n, card, err))
		return AdminResult{}, err
	}
	e.audit.Emit(ctx, locker.AuditAdmin, n, card, fmt.Sprintf("bound locker %d to %s", n, card))
	return AdminResult{Locker: n, Card: card, PreviousOwner: prev}, nil
}

func (e *Engine) AdminReset(ctx context.Context, n locker.Number) (AdminResult, error) {
	if !e.lockers.Valid(n) {
		return AdminResult{}, ErrInvalidSelection
	}
	unlock, err := e.locks.lock(ctx, lockerKey(n))
	if err != nil {
		return AdminResult{}, err
	}
	defer unlock()

	prev, _, err := e.store.Release(ctx, n)
	if err != nil {
		hlog.CtxErrorf(ctx, "reset locker %d: %v", n, err)
		e.audit.Emit(ctx, locker.AuditError, n, "", fmt.Sprintf("locker %d: reset failed: %v", n, err))
		return AdminResult{}, err
	}
	e.audit.Emit(ctx, locker.AuditAdmin, n, prev, fmt.Sprintf("reset locker %d (was %q)", n, prev))
	return AdminResult{Locker: n, PreviousOwner: prev}, nil
}

// AdminOpen unlocks a locker without touching its owner.
func (e *Engine) AdminOpen(ctx context.Context, n locker.Number) error {
	if !e.lockers.Valid(n) {
		return ErrInvalidSelection
	}
	unlock, err := e.locks.lock(ctx, lockerKey(n))
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.actuate(ctx, n, ""); err != nil {
		return err
	}
	e.store.MarkVisiblyOpen(n)
	e.audit.Emit(ctx, locker.AuditAdmin, n, "", fmt.Sprintf("manual open locker %d", n))
	return nil
}

func (e *Engine) actuate(ctx context.Context, n locker.Number, card string) error {
	err := e.actuator.Open(ctx, n)
	if e.metrics != nil {
		e.metrics.RecordActuation(err)
	}
	if err != nil {
		hlog.CtxWarnf(ctx, "open locker %d: %v", n, err)
		e.audit.ActuationFailed(ctx, n, card, err)
	}
	return err
}

func (e *Engine) recordSelection(outcome ports.Outcome) {
	if e.metrics != nil {
		e.metrics.RecordSelection(outcome)
	}
}

func lockerKey(n locker.Number) string {
	return "locker:" + strconv.Itoa(int(n))
}

func cardKey(card string) string {
	return "card:" + card
}
