package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders completed after payment",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payments initiated",
	}, []string{"provider"})

	PaymentsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments completed",
	}, []string{"provider"})

	PaymentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of failed payments",
	}, []string{"provider"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhooks accepted for processing",
	}, []string{"provider"})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_rejected_total",
		Help: "Total number of webhooks rejected for bad signatures",
	}, []string{"provider"})

	WebhooksDuplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_duplicate_total",
		Help: "Total number of duplicate webhook deliveries",
	}, []string{"provider"})

	NotificationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Total number of notifications created",
	}, []string{"type"})

	SMSDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_deliveries_total",
		Help: "Total number of SMS delivery attempts",
	}, []string{"status"})

	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_sweeps_total",
		Help: "Total number of monitoring sweeps run",
	})

	JobsDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_jobs_dispatched_total",
		Help: "Total number of monitoring jobs dispatched",
	})

	JobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_jobs_completed_total",
		Help: "Total number of monitoring jobs completed",
	})

	JobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_jobs_failed_total",
		Help: "Total number of monitoring jobs failed",
	})

	ImagesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "satellite_images_processed_total",
		Help: "Total number of satellite images evaluated",
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encroachment_detections_total",
		Help: "Total number of encroachment detections recorded",
	}, []string{"severity"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitoring_job_duration_seconds",
		Help:    "Duration of monitoring job runs",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
