package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the orchestrator reports to.
type Recorder interface {
	TickFinished(result string, d time.Duration)
	StepFailed(step string)
	TournamentTransitioned(status string)
	BotsAdded(n int)
	PrizePaid(amount int64)
}

const namespace = "tournament_orchestrator"

type PrometheusRecorder struct {
	registry      *prometheus.Registry
	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	stepFailures  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	botsAdded     prometheus.Counter
	prizesCredits prometheus.Counter
}

func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Orchestrator ticks by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one orchestrator tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed orchestrator steps.",
		}, []string{"step"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tournament_transitions_total",
			Help:      "Tournaments moved into a status.",
		}, []string{"status"}),
		botsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bots_added_total",
			Help:      "Synthetic participants inserted by bot fill.",
		}),
		prizesCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prizes_paid_total",
			Help:      "Sum of prize amounts credited.",
		}),
	}
	r.registry.MustRegister(
		r.ticks, r.tickDuration, r.stepFailures, r.transitions, r.botsAdded, r.prizesCredits,
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) TickFinished(result string, d time.Duration) {
	r.ticks.WithLabelValues(result).Inc()
	r.tickDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) StepFailed(step string) {
	r.stepFailures.WithLabelValues(step).Inc()
}

func (r *PrometheusRecorder) TournamentTransitioned(status string) {
	r.transitions.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) BotsAdded(n int) {
	r.botsAdded.Add(float64(n))
}

func (r *PrometheusRecorder) PrizePaid(amount int64) {
	r.prizesCredits.Add(float64(amount))
}

type NoOp struct{}

func (NoOp) TickFinished(string, time.Duration) {}
func (NoOp) StepFailed(string)                  {}
func (NoOp) TournamentTransitioned(string)      {}
func (NoOp) BotsAdded(int)                      {}
func (NoOp) PrizePaid(int64)                    {}
