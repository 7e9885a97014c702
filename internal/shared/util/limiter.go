// # internal/shared/util/limiter.go
package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out repeated work such as rebuilds in watch mode. The
// first call never waits; later calls wait until minInterval has passed
// since the previous one.
type Throttle struct {
	inner *rate.Limiter
}

// NewThrottle returns a throttle allowing one event per minInterval. A
// non-positive interval disables throttling.
func NewThrottle(minInterval time.Duration) *Throttle {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Throttle{inner: rate.NewLimiter(limit, 1)}
}

// Allow reports whether an event may happen now, consuming the slot if so.
func (t *Throttle) Allow() bool {
	return t.inner.Allow()
}

// Wait blocks until the next event may happen or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.inner.Wait(ctx)
}
