// # internal/shared/util/limiter_test.go
package util

import (
	"context"
	"testing"
	"time"
)

func TestThrottle(t *testing.T) {
	th := NewThrottle(100 * time.Millisecond)

	if !th.Allow() {
		t.Fatal("expected the first event to pass")
	}
	if th.Allow() {
		t.Fatal("expected the second event inside the interval to be held back")
	}

	time.Sleep(150 * time.Millisecond)
	if !th.Allow() {
		t.Fatal("expected an event after the interval")
	}
}

func TestThrottle_WaitHonoursContext(t *testing.T) {
	th := NewThrottle(time.Hour)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("first wait should not block: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := th.Wait(ctx); err == nil {
		t.Fatal("expected wait to fail once the context expires before the next slot")
	}
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 5; i++ {
		if !th.Allow() {
			t.Fatalf("event %d held back by a disabled throttle", i)
		}
	}
}
