package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(pollOutcomes, activeViews, jobActions)
}

// Poll outcomes.
const (
	PollApplied   = "applied"
	PollStale     = "stale"
	PollFailed    = "failed"
	PollRejected  = "unauthorized"
	PollMalformed = "malformed"
)

var (
	pollOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmlc_job_polls_total",
			Help: "Job view polls by outcome.",
		},
		[]string{"outcome"},
	)

	activeViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kmlc_job_views_active",
			Help: "Mounted job views currently polling.",
		},
	)

	jobActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmlc_job_actions_total",
			Help: "User-triggered job actions by action and result.",
		},
		[]string{"action", "result"},
	)
)

func PollOutcome(outcome string) { pollOutcomes.WithLabelValues(norm(outcome)).Inc() }

func SetActiveViews(n int) { activeViews.Set(float64(n)) }

// JobAction records a start, cancel, download or upload attempt.
func JobAction(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobActions.WithLabelValues(norm(action), result).Inc()
}
