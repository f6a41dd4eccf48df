package translate

import (
	"errors"
	"fmt"
)

// ErrContentPolicy marks a backend-signaled content-policy rejection. It is
// terminal: the engine propagates it immediately without retrying.
var ErrContentPolicy = errors.New("content policy rejection")

// ErrRateLimited marks a 429 from the backend. The engine drains its local
// token bucket and retries.
var ErrRateLimited = errors.New("rate limited")

// ValidationError reports a response whose shape does not match the
// request: mismatched keys on a keyed payload, or a wrong line count on a
// line batch. Validation errors are retried up to the engine's bound.
type ValidationError struct {
	Reason string
	Want   int
	Got    int
}

func (e *ValidationError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("invalid response: %s (want %d, got %d)", e.Reason, e.Want, e.Got)
	}
	return "invalid response: " + e.Reason
}
