package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_opened_total",
			Help: "Questions opened, by trigger",
		},
		[]string{"trigger"},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_closed_total",
			Help: "Questions closed, by reason",
		},
		[]string{"reason"},
	)

	AnswersRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Answer events, by outcome",
		},
		[]string{"outcome"},
	)

	TransportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_transport_failures_total",
			Help: "Failed transport calls, by operation",
		},
		[]string{"op"},
	)

	SnapshotFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_snapshot_failures_total",
			Help: "Snapshot writes that failed",
		},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(SessionsOpened)
		prometheus.MustRegister(SessionsClosed)
		prometheus.MustRegister(AnswersRecorded)
		prometheus.MustRegister(TransportFailures)
		prometheus.MustRegister(SnapshotFailures)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
