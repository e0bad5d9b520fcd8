package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	IntentResultCreated       = "created"
	IntentResultInvalid       = "invalid"
	IntentResultRejected      = "rejected"
	IntentResultNotConfigured = "not_configured"
	IntentResultError         = "error"
)

func init() {
	register(
		intentsTotal,
		intentDurationSeconds,
		rateLimitedTotal,
		offerTimerReadsTotal,
	)
}

var (
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_intents_total",
			Help: "Payment intent issuance requests by result.",
		},
		[]string{"result"},
	)

	intentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_intent_duration_seconds",
			Help:    "Latency of payment intent creation at the provider.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)

	offerTimerReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_offer_timer_reads_total",
			Help: "Offer timer reads served over HTTP.",
		},
	)
)

// Recorder is the metrics surface used by services. Prometheus is the default implementation.
type Recorder interface {
	ObserveIntent(result string, d time.Duration)
	IncRateLimited()
	IncOfferTimerRead()
}

type Prometheus struct{}

func (Prometheus) ObserveIntent(result string, d time.Duration) {
	result = norm(result)
	intentsTotal.WithLabelValues(result).Inc()
	if result == IntentResultCreated || result == IntentResultRejected || result == IntentResultError {
		intentDurationSeconds.Observe(d.Seconds())
	}
}

func (Prometheus) IncRateLimited() {
	rateLimitedTotal.Inc()
}

func (Prometheus) IncOfferTimerRead() {
	offerTimerReadsTotal.Inc()
}

type Nop struct{}

func (Nop) ObserveIntent(string, time.Duration) {}
func (Nop) IncRateLimited()                     {}
func (Nop) IncOfferTimerRead()                  {}
