// Package metrics defines Prometheus metrics for intake submissions,
// document rendering and mail delivery.
package metrics
