package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels used by SubmissionsTotal.
const (
	ResultSent       = "sent"
	ResultInvalid    = "invalid"
	ResultDuplicate  = "duplicate"
	ResultBusy       = "busy"
	ResultRenderFail = "render_failed"
	ResultSendFail   = "send_failed"
)

var (
	// Submission lifecycle metrics
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_submissions_total",
		Help: "Total number of intake submissions grouped by final result",
	}, []string{"result"})
	SubmissionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coffret_submissions_in_flight",
		Help: "Number of submissions currently rendering or dispatching",
	})

	// Render metrics
	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coffret_render_duration_seconds",
		Help:    "Time spent rendering and flushing the summary PDF",
		Buckets: prometheus.DefBuckets,
	})
	RenderFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_render_fallbacks_total",
		Help: "Total number of renders that substituted a missing optional asset",
	}, []string{"asset"})

	// Mail metrics. The recipient label is either "client" or "operator",
	// never an address.
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"recipient"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"recipient"})

	// HTTP metrics
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_http_rate_limited_total",
		Help: "Total number of requests rejected by the per-IP rate limiter",
	}, []string{"route"})

	// Audit metrics
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_audit_events_total",
		Help: "Total number of audit events handed to a sink, by sink and outcome",
	}, []string{"sink", "outcome"})
	AuditEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coffret_audit_events_dropped_total",
		Help: "Total number of audit events dropped before reaching any sink",
	}, []string{"reason"})
	AuditSinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coffret_audit_sink_write_seconds",
		Help:    "Latency of audit sink writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(SubmissionsInFlight)
	prometheus.MustRegister(RenderDuration)
	prometheus.MustRegister(RenderFallbacks)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(AuditSinkLatency)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
