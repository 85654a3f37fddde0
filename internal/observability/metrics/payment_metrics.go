package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	WebhookOutcomeProcessed  = "processed"
	WebhookOutcomeRejected   = "rejected"
	WebhookOutcomeMalformed  = "malformed"
	WebhookOutcomeNotFound   = "not_found"
	WebhookOutcomeRetryLater = "retry_later"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures payment pipeline health signals.
type Metrics struct {
	paymentsInitiated *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	activations       *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Payment returns the singleton payment metrics registry.
func Payment() *Metrics {
	return PaymentWithConfig(Config{})
}

// PaymentWithConfig returns the singleton payment metrics registry using
// config labels.
func PaymentWithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetPaymentMetricsForTest resets the payment metrics singleton for tests.
func ResetPaymentMetricsForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kassa"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	paymentsInitiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kassa_payments_initiated_total",
		Help:        "Payments initiated with the provider by plan.",
		ConstLabels: constLabels,
	}, []string{"plan"})
	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kassa_webhook_deliveries_total",
		Help:        "Provider webhook deliveries by low-cardinality outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kassa_payment_status_transitions_total",
		Help:        "Payment status transitions applied to the store.",
		ConstLabels: constLabels,
	}, []string{"to"})
	activations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kassa_subscription_activations_total",
		Help:        "Subscription activations on confirmed payments by plan.",
		ConstLabels: constLabels,
	}, []string{"plan"})

	registerer.MustRegister(
		paymentsInitiated,
		webhookDeliveries,
		statusTransitions,
		activations,
	)

	return &Metrics{
		paymentsInitiated: paymentsInitiated,
		webhookDeliveries: webhookDeliveries,
		statusTransitions: statusTransitions,
		activations:       activations,
	}
}

// RecordPaymentInitiated increments the initiated counter for a plan.
func (m *Metrics) RecordPaymentInitiated(plan string) {
	if m == nil || m.paymentsInitiated == nil {
		return
	}
	m.paymentsInitiated.WithLabelValues(plan).Inc()
}

// RecordWebhook increments the delivery counter for an outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil || m.webhookDeliveries == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
}

// RecordStatusTransition increments the transition counter for a target status.
func (m *Metrics) RecordStatusTransition(to string) {
	if m == nil || m.statusTransitions == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

// RecordSubscriptionActivated increments the activation counter for a plan.
func (m *Metrics) RecordSubscriptionActivated(plan string) {
	if m == nil || m.activations == nil {
		return
	}
	m.activations.WithLabelValues(plan).Inc()
}
