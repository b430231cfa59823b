package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesComputed counts pricing computations by call site and service mix.
	QuotesComputed *prometheus.CounterVec
	// QuoteTotalAmount records computed quote totals in currency units.
	QuoteTotalAmount *prometheus.HistogramVec
	// BookingsCreated counts accepted booking submissions.
	BookingsCreated *prometheus.CounterVec
	// BookingTransitions counts booking status changes.
	BookingTransitions *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// NotificationsTotal counts notification deliveries by topic and outcome.
	NotificationsTotal *prometheus.CounterVec
	// EventsEmitted counts domain events by topic and fan-out outcome.
	EventsEmitted *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesComputed = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_computed_total",
			Help:      "Count of quote computations by source and service mix.",
		}, []string{"source", "services"}))
		QuoteTotalAmount = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_total_amount",
			Help:      "Distribution of computed quote totals.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 3500, 5000, 10000},
		}, []string{"source"}))
		BookingsCreated = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Count of booking submissions by outcome.",
		}, []string{"result"}))
		BookingTransitions = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Count of booking status transitions.",
		}, []string{"from", "to"}))
		PaymentIntentTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "target", "result"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		NotificationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notification deliveries by topic, channel and outcome.",
		}, []string{"topic", "channel", "result"}))
		EventsEmitted = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Count of persisted domain events by topic and notifier outcome.",
		}, []string{"topic", "result"}))
	})
}

// ObserveQuote records a pricing computation when domain metrics are registered.
func ObserveQuote(source, services string, total float64) {
	if QuotesComputed != nil {
		QuotesComputed.WithLabelValues(source, services).Inc()
	}
	if QuoteTotalAmount != nil {
		QuoteTotalAmount.WithLabelValues(source).Observe(total)
	}
}

// Inc increments a labelled counter when it has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec != nil {
		vec.WithLabelValues(labels...).Inc()
	}
}
