package inmemory

import (
	"sync"

	"lockerkiosk/internal/app/ports"
)

type Snapshot struct {
	SelectionTotal    uint64            `json:"selection_total"`
	SelectionAcquired uint64            `json:"selection_acquired"`
	SelectionOpened   uint64            `json:"selection_opened"`
	SelectionRejected uint64            `json:"selection_rejected"`
	SelectionConflict uint64            `json:"selection_conflict"`
	SelectionFailure  uint64            `json:"selection_failure"`
	CardReads         uint64            `json:"card_reads"`
	ActuationTotal    uint64            `json:"actuation_total"`
	ByActuationResult map[string]uint64 `json:"by_actuation_result"`
}

type Recorder struct {
	mu          sync.Mutex
	bySelection map[ports.Outcome]uint64
	cardReads   uint64
	byActuation map[string]uint64
}

func NewRecorder() *Recorder {
	return &Recorder{
		bySelection: map[ports.Outcome]uint64{},
		byActuation: map[string]uint64{},
	}
}

func (r *Recorder) RecordSelection(outcome ports.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySelection[outcome]++
}

func (r *Recorder) RecordActuation(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byActuation[ports.ActuationResult(err)]++
}

func (r *Recorder) RecordCardRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cardReads++
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		SelectionAcquired: r.bySelection[ports.OutcomeAcquired],
		SelectionOpened:   r.bySelection[ports.OutcomeOpened],
		SelectionRejected: r.bySelection[ports.OutcomeRejected],
		SelectionConflict: r.bySelection[ports.OutcomeConflict],
		SelectionFailure:  r.bySelection[ports.OutcomeFailed],
		CardReads:         r.cardReads,
		ByActuationResult: make(map[string]uint64, len(r.byActuation)),
	}
	for _, v := range r.bySelection {
		out.SelectionTotal += v
	}
	for k, v := range r.byActuation {
		out.ByActuationResult[k] = v
		out.ActuationTotal += v
	}
	return out
}

func (r *Recorder) SnapshotAny() any {
	return r.Snapshot()
}

var _ ports.LockerMetrics = (*Recorder)(nil)
