// Package observability provides structured logging and metrics for the
// authorization gateway.
//
// This package implements:
//   - Structured logging (zap-based, JSON or console encoding)
//   - Prometheus collectors for authorization decisions and the audit trail
package observability
