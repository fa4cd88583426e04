// Package logging assembles structured slog loggers and formatting helpers used
// across kmlc.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so API calls can tag log lines with the
// request ID sent to the server. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
package logging
