// Package server exposes the HTTP monitoring and control API: health,
// statistics, sanitized configuration, pause/resume, and Prometheus
// metrics.
package server
