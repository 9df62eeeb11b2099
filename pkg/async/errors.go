package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the future is not
	// resolved within the given duration.
	ErrTimeout = errors.New("future await timed out")
)
