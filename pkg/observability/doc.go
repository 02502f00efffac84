// Package observability provides logging and metrics for the portal core.
//
// Logging uses logrus with a component field convention:
//
//	log := observability.NewLogger(cfg.LogLevel, cfg.LogJSON)
//	engineLog := log.WithField("component", "feed")
//
// Metrics are Prometheus collectors registered on a dedicated registry and
// served from /metrics by pkg/api.
package observability
