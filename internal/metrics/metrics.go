// metrics — коллекторы Prometheus сервиса comment-tree.
// Методы безопасны для nil-получателя: компоненты можно собирать без метрик.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "comment_tree"

type Metrics struct {
	commentWrites  *prometheus.CounterVec
	exportJobs     *prometheus.CounterVec
	exportDuration prometheus.Histogram
	notifyFailures prometheus.Counter
	sweptArtifacts prometheus.Counter
}

// New регистрирует коллекторы в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		commentWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_writes_total",
			Help:      "Comment mutations by operation and result.",
		}, []string{"op", "result"}),
		exportJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_jobs_total",
			Help:      "Finished export jobs by terminal status.",
		}, []string{"status"}),
		exportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_job_duration_seconds",
			Help:      "Export job execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Swallowed notification sink failures.",
		}),
		sweptArtifacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_artifacts_swept_total",
			Help:      "Expired export artifacts removed by the sweeper.",
		}),
	}
}

// CommentWrite учитывает мутацию op ("create"/"update"/"delete") с результатом result.
func (m *Metrics) CommentWrite(op, result string) {
	if m == nil {
		return
	}

	m.commentWrites.WithLabelValues(op, result).Inc()
}

// ExportJob учитывает завершённую задачу экспорта.
func (m *Metrics) ExportJob(status string, took time.Duration) {
	if m == nil {
		return
	}

	m.exportJobs.WithLabelValues(status).Inc()
	m.exportDuration.Observe(took.Seconds())
}

func (m *Metrics) NotifyFailure() {
	if m == nil {
		return
	}

	m.notifyFailures.Inc()
}

func (m *Metrics) ArtifactsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}

	m.sweptArtifacts.Add(float64(n))
}
