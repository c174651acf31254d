// Package prom exports locker metrics through a private Prometheus registry.
package prom

import (
	"net/http"

	"lockerkiosk/internal/app/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "locker"

type Recorder struct {
	registry   *prometheus.Registry
	selections *prometheus.CounterVec
	actuations *prometheus.CounterVec
	cardReads  prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Locker selections by outcome.",
		}, []string{"outcome"}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Lock controller open commands by result.",
		}, []string{"result"}),
		cardReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_reads_total",
			Help:      "Card identifiers accepted from the reader.",
		}),
	}
	r.registry.MustRegister(
		r.selections,
		r.actuations,
		r.cardReads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) RecordSelection(outcome ports.Outcome) {
	r.selections.WithLabelValues(string(outcome)).Inc()
}

func (r *Recorder) RecordActuation(err error) {
	r.actuations.WithLabelValues(ports.ActuationResult(err)).Inc()
}

func (r *Recorder) RecordCardRead() {
	r.cardReads.Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ ports.LockerMetrics = (*Recorder)(nil)
