// Package logging assembles structured slog loggers and formatting helpers used
// across podforge.
//
// It owns the console and JSON handlers, the tee handler that mirrors daemon
// output into a JSON log file, per-stage level overrides, and context-aware
// helpers so stage code can tag log lines with job IDs, stages, attempts, and
// request IDs. NewNop provides a silent logger for tests and wiring code.
package logging
