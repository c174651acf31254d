package board

import (
	"context"
	"time"

	"lockerkiosk/internal/domain/locker"
)

type StateReader interface {
	Snapshot() locker.Assignments
	VisiblyOpen() []locker.Number
}

type SessionReader interface {
	Current() (string, bool)
}

// UseCase builds the read model polled by the kiosk screen.
type UseCase struct {
	Store   StateReader
	Session SessionReader
	Lockers locker.Range
	Now     func() time.Time
}

func (u UseCase) Execute(_ context.Context) (locker.Board, error) {
	nowFn := u.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	owners := u.Store.Snapshot()
	open := map[locker.Number]bool{}
	for _, n := range u.Store.VisiblyOpen() {
		open[n] = true
	}

	out := locker.Board{
		Cells: make([]locker.Cell, 0, u.Lockers.Count),
		At:    nowFn().UTC(),
	}
	if card, ok := u.Session.Current(); ok {
		out.ActiveCard = card
	}
	u.Lockers.Each(func(n locker.Number) {
		owner := owners[n]
		out.Cells = append(out.Cells, locker.Cell{
			Number:      n,
			Owner:       owner,
			VisiblyOpen: open[n],
			State:       locker.DeriveDisplay(owner, open[n]),
		})
	})
	return out, nil
}
