// Package filerepo keeps the assignment snapshot in a JSON file keyed by the
// decimal locker number. Saves go through a temp file and a rename so a
// crash never leaves a half-written snapshot behind.
package filerepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"lockerkiosk/internal/domain/locker"
)

const DefaultPath = "locker_assignments.json"

type AssignmentRepo struct {
	path string
}

func NewAssignmentRepo(path string) AssignmentRepo {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return AssignmentRepo{path: path}
}

func (r AssignmentRepo) Path() string {
	return r.path
}

// Load returns an empty snapshot when the file does not exist yet.
func (r AssignmentRepo) Load(_ context.Context) (locker.Assignments, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return locker.Assignments{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return locker.Assignments{}, nil
	}
	raw := map[string]string{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	out := make(locker.Assignments, len(raw))
	for k, card := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("decode %s: locker key %q: %w", r.path, k, err)
		}
		out[locker.Number(n)] = card
	}
	return out, nil
}

func (r AssignmentRepo) Save(_ context.Context, snapshot locker.Assignments) error {
	raw := make(map[string]string, len(snapshot))
	for n, card := range snapshot {
		raw[strconv.Itoa(int(n))] = card
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}
	return writeAtomic(r.path, payload)
}

func writeAtomic(dest string, payload []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dest, err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", dest, err)
	}
	return nil
}
