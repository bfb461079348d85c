// Package metrics declares the Prometheus series the orchestrator exposes,
// grounded on the single-file registration pattern other agent-orchestration
// controllers in the corpus use: package-level collectors registered once in
// init. Callers record on the exported collectors directly; the package
// has no helper funcs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_iterations_total",
			Help: "Total number of iterations run, by strategy mode (regeneration/edit).",
		},
		[]string{"mode"},
	)

	IterationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_iteration_duration_seconds",
			Help:    "Wall-clock duration of one OPTIMIZING->GENERATING->EVALUATING pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~2048s
		},
	)

	JudgeCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_judge_call_duration_seconds",
			Help:    "Duration of a single judge agent's evaluation of one image.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"agent"},
	)

	JudgeCallFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_judge_call_failures_total",
			Help: "Judge calls that returned an unusable evaluation, by agent and reason.",
		},
		[]string{"agent", "reason"},
	)

	RequestsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_requests_completed_total",
			Help: "Generation requests that reached a terminal status, by completion reason.",
		},
		[]string{"reason"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_retries_total",
			Help: "Backend call retries, by operation (generateImages/editImages/storeImage).",
		},
		[]string{"operation"},
	)

	ImagesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_images_generated_total",
			Help: "Total number of images produced across all iterations.",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_queue_depth",
			Help: "Number of jobs currently queued awaiting a free worker.",
		},
	)

	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_active_workers",
			Help: "Number of worker goroutines currently executing a request.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		IterationsTotal,
		IterationDurationSeconds,
		JudgeCallDurationSeconds,
		JudgeCallFailuresTotal,
		RequestsCompletedTotal,
		RetriesTotal,
		ImagesGeneratedTotal,
		QueueDepth,
		ActiveWorkers,
	)
}
