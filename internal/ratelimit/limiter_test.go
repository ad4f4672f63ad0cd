package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	sleepE error
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	return c.sleepE
}

func newTestLimiter(cfg Config, clock *fakeClock) *Limiter {
	l := New(cfg)
	l.now = clock.Now
	l.sleep = clock.Sleep
	// lower bound of every jitter window
	l.rand = func(lo, _ time.Duration) time.Duration { return lo }
	return l
}

func TestWait_SpacesCalls(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(DefaultConfig(), clock)
	ctx := context.Background()

	// first call: nothing elapsed since zero time, only base jitter
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	clock.Advance(500 * time.Millisecond)

	// second call immediately after the first turn: min interval + jitter, capped
	clock.Advance(100 * time.Millisecond)
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if len(clock.slept) != 2 {
		t.Fatalf("sleeps: %v", clock.slept)
	}
	if clock.slept[0] != 500*time.Millisecond {
		t.Errorf("base jitter: got %v", clock.slept[0])
	}
	// elapsed 100ms since the reserved turn: 2s - 100ms + 1s
	if want := 2900 * time.Millisecond; clock.slept[1] != want {
		t.Errorf("spacing: got %v, want %v", clock.slept[1], want)
	}
}

func TestWait_CapsSleep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.MinInterval = 10 * time.Second
	l := newTestLimiter(cfg, clock)

	_ = l.Wait(context.Background())
	clock.Advance(500 * time.Millisecond)
	_ = l.Wait(context.Background())

	if got := clock.slept[1]; got != cfg.MaxSleep {
		t.Errorf("got %v, want cap %v", got, cfg.MaxSleep)
	}
}

func TestWait_QueuedCallersStaySpaced(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(DefaultConfig(), clock)
	ctx := context.Background()

	// three callers arrive at the same instant
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// first: base 500ms (turn at +0.5s)
	// second: elapsed -0.5s, waits 2.5s+1s (turn at +3.5s)
	// third: elapsed -3.5s, waits 5.5s+1s, beyond the cap because it queues behind a reservation
	want := []time.Duration{500 * time.Millisecond, 3500 * time.Millisecond, 6500 * time.Millisecond}
	for i, w := range want {
		if clock.slept[i] != w {
			t.Errorf("caller %d: got %v, want %v", i, clock.slept[i], w)
		}
	}
}

func TestWait_Cancelled(t *testing.T) {
	l := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}

	// cancellation while sleeping
	l = New(Config{MinInterval: time.Hour, JitterMin: time.Hour, JitterMax: time.Hour})
	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first turn should not sleep long: %v", err)
	}
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait did not honor the deadline")
	}
}

func TestWait_DailyBudget(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.DailyBudget = 2
	l := newTestLimiter(cfg, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Wait(ctx); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("got %v", err)
	}
	if used, budget := l.Usage(); used != 2 || budget != 2 {
		t.Errorf("usage %d/%d", used, budget)
	}

	clock.Advance(2 * time.Hour)
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("budget should reset on a new day: %v", err)
	}
}

func TestWait_CancelledSleepReturnsTurn(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.DailyBudget = 2
	l := newTestLimiter(cfg, clock)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	clock.Advance(500 * time.Millisecond)

	clock.sleepE = context.Canceled
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if used, _ := l.Usage(); used != 1 {
		t.Errorf("cancelled turn still counted: used %d", used)
	}

	// the abandoned slot must not push the next caller further out
	clock.sleepE = nil
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("budget should still allow a call: %v", err)
	}
	if got := clock.slept[len(clock.slept)-1]; got != 3*time.Second {
		t.Errorf("slept %v after a cancelled turn, want 3s", got)
	}
	if used, _ := l.Usage(); used != 2 {
		t.Errorf("used %d", used)
	}
}
