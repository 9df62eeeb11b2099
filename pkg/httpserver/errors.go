package httpserver

import "errors"

var (
	// ErrStart indicates the server failed to start or stopped unexpectedly.
	ErrStart = errors.New("http server failed to start")
	// ErrShutdown indicates graceful shutdown did not complete.
	ErrShutdown = errors.New("http server shutdown failed")
)
