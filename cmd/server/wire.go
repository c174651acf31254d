package main

import (
	"context"
	"fmt"
	"os"
	"time"

	migrations "lockerkiosk/db"
	"lockerkiosk/internal/adapter/actuator"
	"lockerkiosk/internal/adapter/audit/logsink"
	sqliteaudit "lockerkiosk/internal/adapter/audit/sqlite"
	metricsinmem "lockerkiosk/internal/adapter/metrics/inmemory"
	"lockerkiosk/internal/adapter/metrics/multi"
	"lockerkiosk/internal/adapter/metrics/prom"
	filerepo "lockerkiosk/internal/adapter/repo/file"
	gormrepo "lockerkiosk/internal/adapter/repo/gorm"
	"lockerkiosk/internal/adapter/repo/memory"
	"lockerkiosk/internal/app/access"
	"lockerkiosk/internal/app/assignment"
	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/board"
	"lockerkiosk/internal/app/bulk"
	"lockerkiosk/internal/app/intake"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/app/session"
	"lockerkiosk/internal/config"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

type kiosk struct {
	store    *assignment.Store
	session  *session.CardSession
	actuator *actuator.Client
	emitter  audit.Emitter
	engine   *access.Engine
	bulk     *bulk.Job
	intake   intake.UseCase
	board    board.UseCase
	auditUC  audit.UseCase
	kpi      *metricsinmem.Recorder
	prom     *prom.Recorder
	closers  []func() error
}

func (k *kiosk) close() {
	if k.store != nil {
		k.store.Close()
	}
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i](); err != nil {
			hlog.Warnf("close: %v", err)
		}
	}
}

// build assembles the object graph. withAssignments is false for one-shot
// commands that never read or write ownership.
func build(ctx context.Context, cfg config.Config, withAssignments bool) (_ *kiosk, err error) {
	k := &kiosk{}
	defer func() {
		if err != nil {
			k.close()
		}
	}()

	k.actuator, err = actuator.NewClient(actuatorSettings(cfg), cfg.ActuatorTimeout)
	if err != nil {
		return nil, err
	}

	sinks := audit.Fanout{logsink.Sink{}}
	var auditLog ports.AuditLog
	if cfg.AuditDB != "" {
		s, err := sqliteaudit.Open(ctx, cfg.AuditDB)
		if err != nil {
			return nil, err
		}
		k.closers = append(k.closers, s.Close)
		sinks = append(sinks, s)
		auditLog = s
	} else {
		events := memory.NewEventRepo(memory.NewStore())
		sinks = append(sinks, events)
		auditLog = events
	}
	k.emitter = audit.Emitter{Sink: sinks}
	k.auditUC = audit.UseCase{Log: auditLog}

	k.kpi = metricsinmem.NewRecorder()
	k.prom = prom.NewRecorder()
	metrics := multi.Metrics{k.kpi, k.prom}

	var repo ports.AssignmentRepository
	if withAssignments {
		repo, err = k.assignmentRepo(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	lockers := locker.Range{Count: cfg.Lockers}
	k.store = assignment.NewStore(repo, cfg.OpenGrace)
	if err := k.store.Load(ctx, lockers); err != nil {
		return nil, err
	}
	k.session = session.New()

	k.engine = access.NewEngine(access.Config{
		Store:    k.store,
		Session:  k.session,
		Actuator: k.actuator,
		Audit:    k.emitter,
		Metrics:  metrics,
		Lockers:  lockers,
	})
	k.bulk = bulk.NewJob(bulk.Config{
		Actuator: k.actuator,
		Store:    k.store,
		Audit:    k.emitter,
		Metrics:  metrics,
		Lockers:  lockers,
		Delay:    cfg.BulkDelay,
		Lifetime: ctx,
	})
	k.intake = intake.UseCase{Session: k.session, Audit: k.emitter, Metrics: metrics}
	k.board = board.UseCase{Store: k.store, Session: k.session, Lockers: lockers, Now: time.Now}
	return k, nil
}

func (k *kiosk) assignmentRepo(ctx context.Context, cfg config.Config) (ports.AssignmentRepository, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := gormrepo.OpenPostgres(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres handle: %w", err)
		}
		k.closers = append(k.closers, sqlDB.Close)
		source := migrations.Migrations()
		if cfg.MigrationsDir != "" {
			source = os.DirFS(cfg.MigrationsDir)
		}
		if err := gormrepo.ApplyMigrations(ctx, db, source); err != nil {
			return nil, err
		}
		return gormrepo.NewAssignmentRepo(db), nil
	default:
		return filerepo.NewAssignmentRepo(cfg.DataFile), nil
	}
}

func actuatorSettings(cfg config.Config) actuator.Settings {
	return actuator.Settings{BaseURL: cfg.BaseURL, Token: cfg.Token, ZoneID: cfg.ZoneID}
}

// settingsApplier persists operator edits and pushes them to the live
// actuator client without waiting for the file watcher.
type settingsApplier struct {
	loader   *config.Loader
	actuator *actuator.Client
}

func (s settingsApplier) Current() (config.Config, error) {
	return s.loader.Current()
}

func (s settingsApplier) SaveSettings(in config.Settings) (config.Config, error) {
	cfg, err := s.loader.SaveSettings(in)
	if err != nil {
		return config.Config{}, err
	}
	s.actuator.Update(actuatorSettings(cfg))
	return cfg, nil
}
