package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_created_total",
		Help: "Total number of book purchases created, by funding source",
	}, []string{"funding"})

	EntitlementExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_exhausted_total",
		Help: "Total number of purchase creations rejected because the entitlement could not authorize another book",
	})

	GuestEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_entries_total",
		Help: "Total number of guest entries submitted",
	})

	DocumentsRenderedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_rendered_total",
		Help: "Total number of documents rendered and stored",
	}, []string{"kind"})

	DocumentRenderFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "document_render_failures_total",
		Help: "Total number of failed document regenerations",
	}, []string{"kind"})

	DocumentRenderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "document_render_seconds",
		Help:    "Latency of document rendering",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notifications that could not be delivered",
	})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Total number of payment attempts, by resulting status",
	}, []string{"status"})
)
