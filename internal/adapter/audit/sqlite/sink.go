// Package sqliteaudit persists audit events to a local SQLite database.
package sqliteaudit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	_ "modernc.org/sqlite"
)

const (
	DefaultPath  = "locker_audit.db"
	defaultLimit = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id TEXT PRIMARY KEY,
  occurred_at INTEGER NOT NULL,
  type TEXT NOT NULL,
  locker_number INTEGER,
  card_id TEXT,
  details TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);`

// Sink implements both ports.AuditSink and ports.AuditLog.
type Sink struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Sink, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

// Emit never fails the caller; write errors are logged.
func (s *Sink) Emit(ctx context.Context, ev locker.AuditEvent) {
	var n sql.NullInt64
	if ev.Locker > 0 {
		n = sql.NullInt64{Int64: int64(ev.Locker), Valid: true}
	}
	var card sql.NullString
	if ev.Card != "" {
		card = sql.NullString{String: ev.Card, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events(id, occurred_at, type, locker_number, card_id, details) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OccurredAt.UTC().UnixNano(), string(ev.Type), n, card, ev.Details,
	)
	if err != nil {
		hlog.CtxErrorf(ctx, "audit: write event %s (%s): %v", ev.ID, ev.Type, err)
	}
}

func (s *Sink) List(ctx context.Context, q ports.AuditQuery) ([]locker.AuditEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query := `SELECT id, occurred_at, type, locker_number, card_id, details FROM audit_events`
	args := []any{}
	if q.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, string(q.Type))
	}
	query += ` ORDER BY occurred_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]locker.AuditEvent, 0, limit)
	for rows.Next() {
		var (
			ev   locker.AuditEvent
			at   int64
			typ  string
			n    sql.NullInt64
			card sql.NullString
		)
		if err := rows.Scan(&ev.ID, &at, &typ, &n, &card, &ev.Details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.OccurredAt = time.Unix(0, at).UTC()
		ev.Type = locker.AuditType(typ)
		if n.Valid {
			ev.Locker = locker.Number(n.Int64)
		}
		ev.Card = card.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

var (
	_ ports.AuditSink = (*Sink)(nil)
	_ ports.AuditLog  = (*Sink)(nil)
)
