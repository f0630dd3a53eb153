package actuator

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSetClampsToBounds(t *testing.T) {
	d := New(nil)
	d.Set(ChannelDrogue, 0)
	if got := d.Setpoint(ChannelDrogue); got != MinPulseUs {
		t.Fatalf("Setpoint = %d, want clamped to %d", got, MinPulseUs)
	}
	d.Set(ChannelDrogue, 99999)
	if got := d.Setpoint(ChannelDrogue); got != MaxPulseUs {
		t.Fatalf("Setpoint = %d, want clamped to %d", got, MaxPulseUs)
	}
}

func TestLockIgnoresSubsequentSet(t *testing.T) {
	d := New(nil)
	d.Set(ChannelMain, 1000)
	d.Lock(ChannelMain)
	d.Set(ChannelMain, 2000)
	if got := d.Setpoint(ChannelMain); got != 1000 {
		t.Fatalf("Setpoint after locked Set = %d, want unchanged 1000", got)
	}
	d.Release(ChannelMain)
	d.Set(ChannelMain, 2000)
	if got := d.Setpoint(ChannelMain); got != 2000 {
		t.Fatalf("Setpoint after Release+Set = %d, want 2000", got)
	}
}

func TestRetainWritesEveryChannelEveryTick(t *testing.T) {
	var mu sync.Mutex
	counts := map[Channel]int{}
	d := New(func(ch Channel, pulseUs int) {
		mu.Lock()
		counts[ch]++
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	d.Retain(ctx, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if counts[ChannelDrogue] < 2 || counts[ChannelMain] < 2 {
		t.Fatalf("expected multiple retain writes per channel, got %v", counts)
	}
}

func TestLockedChannelStillRetained(t *testing.T) {
	var mu sync.Mutex
	var lastDrogue int
	d := New(func(ch Channel, pulseUs int) {
		if ch == ChannelDrogue {
			mu.Lock()
			lastDrogue = pulseUs
			mu.Unlock()
		}
	})
	d.Set(ChannelDrogue, 2000)
	d.Lock(ChannelDrogue)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	d.Retain(ctx, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if lastDrogue != 2000 {
		t.Fatalf("locked channel pulse width = %d, want retained at 2000", lastDrogue)
	}
}
