// Package logger builds configured slog.Logger instances with consistent
// defaults across the service: JSON to stdout at info level unless told
// otherwise, with development and production presets.
//
// Usage:
//
//	log := logger.New(logger.WithProduction("subkitd"))
//	logger.SetAsDefault(log)
//
//	log.Info("started", logger.Component("sweeper"))
//
// The attr helpers keep attribute keys uniform so log aggregation queries
// do not have to account for per-package spelling.
package logger
