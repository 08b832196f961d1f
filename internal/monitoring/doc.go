// Package monitoring provides structured logging and Prometheus metrics.
//
// Loggers are built from a LogConfig and write JSON or console lines to a
// rotating file, stderr, or both. Components receive a *zap.Logger through
// their options and fall back to a no-op logger.
//
// Metrics are package level collectors registered with the default registry
// and updated through the Record* helpers. ServeMetrics exposes them over
// HTTP when --metrics-addr is set.
package monitoring
