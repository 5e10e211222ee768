package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"synkboard/internal/domain"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synkboard",
		Subsystem: "rules",
		Name:      "evaluations_total",
		Help:      "Rule evaluations by outcome status.",
	}, []string{"status"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "synkboard",
		Subsystem: "rules",
		Name:      "evaluation_duration_seconds",
		Help:      "Wall time of a single rule evaluation including actions.",
		Buckets:   prometheus.DefBuckets,
	})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synkboard",
		Subsystem: "rules",
		Name:      "actions_total",
		Help:      "Action executions by type and result.",
	}, []string{"type", "result"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "synkboard",
		Subsystem: "rules",
		Name:      "action_duration_seconds",
		Help:      "Wall time of a single action execution.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
)

func observeAction(res ActionResult) {
	result := "success"
	if !res.Success {
		result = "failure"
	}
	actionsTotal.WithLabelValues(string(res.ActionType), result).Inc()
	actionDuration.WithLabelValues(string(res.ActionType)).Observe(float64(res.DurationMS) / 1000)
}

func observeEvaluation(status domain.ExecutionStatus, durationMS int64) {
	evaluationsTotal.WithLabelValues(string(status)).Inc()
	evaluationDuration.Observe(float64(durationMS) / 1000)
}
