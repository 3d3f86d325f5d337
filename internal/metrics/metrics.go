package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_evaluations_total", Help: "Engine evaluation cycles run"},
		[]string{"ticker"},
	)
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_transitions_total", Help: "Stage transitions applied"},
		[]string{"ticker", "stage"},
	)
	AlertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_fired_total", Help: "Alerts passed deduplication and dispatched"},
		[]string{"condition"},
	)
	AlertsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_suppressed_total", Help: "Alerts dropped by deduplication"},
		[]string{"condition"},
	)
	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_errors_total", Help: "Broker API call failures"},
		[]string{"op"},
	)
	QuoteLoopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_sweep_seconds",
			Help:    "Duration of one monitor sweep across the watch list",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal, TransitionsTotal,
		AlertsFired, AlertsSuppressed,
		BrokerErrors, QuoteLoopDuration,
	)
}

// Serve exposes the metrics endpoint on addr and returns the server for
// shutdown.
func Serve(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
