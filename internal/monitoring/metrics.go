package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters and histograms exposed on /metrics.
type Metrics struct {
	SubmissionsTotal  *prometheus.CounterVec
	RiskVerdictsTotal *prometheus.CounterVec
	RiskScores        prometheus.Histogram
	EmailsSentTotal   *prometheus.CounterVec
	EmailFailures     prometheus.Counter
}

// NewMetrics registers the pipeline metrics with the provided registerer.
// Tests pass a throwaway registry so repeated construction does not collide.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inquiry_submissions_total",
			Help: "Contact form submissions by terminal outcome.",
		}, []string{"outcome"}),
		RiskVerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inquiry_risk_verdicts_total",
			Help: "Risk assessment verdicts by result.",
		}, []string{"result"}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inquiry_risk_scores",
			Help:    "Risk scores returned by the scoring service.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		EmailsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inquiry_emails_sent_total",
			Help: "Notification emails delivered by recipient class.",
		}, []string{"recipient_class"}),
		EmailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inquiry_email_failures_total",
			Help: "Notification email delivery failures.",
		}),
	}
}

// ObserveSubmission records the terminal outcome of one pipeline run.
func (metrics *Metrics) ObserveSubmission(outcome string) {
	if metrics == nil {
		return
	}
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveVerdict records a risk assessment result and its score.
func (metrics *Metrics) ObserveVerdict(result string, score float64) {
	if metrics == nil {
		return
	}
	metrics.RiskVerdictsTotal.WithLabelValues(result).Inc()
	metrics.RiskScores.Observe(score)
}

// ObserveEmailSent records a delivered notification.
func (metrics *Metrics) ObserveEmailSent(recipientClass string) {
	if metrics == nil {
		return
	}
	metrics.EmailsSentTotal.WithLabelValues(recipientClass).Inc()
}

// ObserveEmailFailure records a failed delivery attempt.
func (metrics *Metrics) ObserveEmailFailure() {
	if metrics == nil {
		return
	}
	metrics.EmailFailures.Inc()
}
