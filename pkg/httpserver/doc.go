// Package httpserver provides a lightweight wrapper around net/http that adds
// graceful shutdown, configurable server timeouts, health-check handlers, and
// structured logging via slog.
//
// Run blocks until the context is cancelled or an interrupt/TERM signal is
// received, then shuts the server down using http.Server.Shutdown with a
// configurable deadline. Construction goes through New or NewFromConfig with
// Option helpers such as WithAddr, WithReadTimeout and WithLogger.
// HealthCheckHandler serves both liveness and readiness probes.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
//
//	srv := httpserver.New(
//		httpserver.WithAddr(":8080"),
//		httpserver.WithShutdownTimeout(10*time.Second),
//		httpserver.WithLogger(log),
//	)
//
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run wraps listen failures with ErrStart and Shutdown wraps underlying
// shutdown errors with ErrShutdown, so both can be inspected with errors.Is.
package httpserver
