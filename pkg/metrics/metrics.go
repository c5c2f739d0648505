// Package metrics exposes verification runs as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cgast/canarygate/pkg/verify"
)

const namespace = "canarygate"

// Recorder implements verify.MetricsRecorder on its own registry, so several
// runs in one process (tests, mostly) never collide.
type Recorder struct {
	registry *prometheus.Registry

	// polls counts completed polls.
	polls prometheus.Counter

	// checkResults counts check outcomes.
	// Labels: check, outcome (pass, fail, error)
	checkResults *prometheus.CounterVec

	// checkDuration measures one check's pipeline, transport included.
	// Labels: check
	checkDuration *prometheus.HistogramVec

	// checkValue is the last numeric value a check evaluated.
	// Labels: check
	checkValue *prometheus.GaugeVec

	// status is 1 for the final verdict of the run, 0 for the others.
	// Labels: status
	status *prometheus.GaugeVec
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total polls executed",
		}),
		checkResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_results_total",
			Help:      "Total check results by outcome",
		}, []string{"check", "outcome"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Check execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"check"}),
		checkValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_value",
			Help:      "Last numeric value evaluated by a check",
		}, []string{"check"}),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "verification_status",
			Help:      "Final verification verdict (1 for the reached status)",
		}, []string{"status"}),
	}
}

// Outcome labels.
const (
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeError = "error"
)

func outcome(r verify.CheckResult) string {
	switch {
	case r.Stage != "":
		return OutcomeError
	case r.Success:
		return OutcomePass
	default:
		return OutcomeFail
	}
}

func (r *Recorder) PollCompleted() {
	r.polls.Inc()
}

func (r *Recorder) CheckCompleted(result verify.CheckResult, elapsed time.Duration) {
	r.checkResults.WithLabelValues(result.CheckName, outcome(result)).Inc()
	r.checkDuration.WithLabelValues(result.CheckName).Observe(elapsed.Seconds())
	if f, ok := result.Value.(float64); ok {
		r.checkValue.WithLabelValues(result.CheckName).Set(f)
	}
}

func (r *Recorder) RunCompleted(result verify.VerificationResult) {
	for _, s := range []verify.Status{verify.StatusPassed, verify.StatusFailed, verify.StatusTimeout} {
		v := 0.0
		if s == result.Status {
			v = 1
		}
		r.status.WithLabelValues(string(s)).Set(v)
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path in the node_exporter textfile
// collector format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
