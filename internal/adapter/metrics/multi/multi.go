// Package multi fans locker metrics out to several recorders.
package multi

import "lockerkiosk/internal/app/ports"

type Metrics []ports.LockerMetrics

func (m Metrics) RecordSelection(outcome ports.Outcome) {
	for _, r := range m {
		r.RecordSelection(outcome)
	}
}

func (m Metrics) RecordActuation(err error) {
	for _, r := range m {
		r.RecordActuation(err)
	}
}

func (m Metrics) RecordCardRead() {
	for _, r := range m {
		r.RecordCardRead()
	}
}

var _ ports.LockerMetrics = Metrics(nil)
