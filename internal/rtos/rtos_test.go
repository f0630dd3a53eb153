package rtos

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestIntervalLoopFiresAtFixedCadence(t *testing.T) {
	var mu sync.Mutex
	var ticks []time.Time

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	IntervalLoop(ctx, 10*time.Millisecond, func(now time.Time) {
		mu.Lock()
		ticks = append(ticks, now)
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) < 3 {
		t.Fatalf("got %d ticks in 55ms at 10ms period, want >= 3", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		gap := ticks[i].Sub(ticks[i-1])
		if gap != 10*time.Millisecond {
			t.Fatalf("tick %d gap = %v, want exactly 10ms (absolute deadline, no drift)", i, gap)
		}
	}
}

func TestIntervalLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		IntervalLoop(ctx, 5*time.Millisecond, func(time.Time) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("IntervalLoop did not return after cancel")
	}
}

func TestNonPositivePeriodIsNoop(t *testing.T) {
	called := false
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	IntervalLoop(ctx, 0, func(time.Time) { called = true })
	if called {
		t.Fatal("fn should never be called with a non-positive period")
	}
}
