// Package ratelimit paces outbound requests to the external price sources.
// A single Limiter is shared by every strategy so that all fetches, for all
// items, pass through one politeness gate.
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned once the daily fetch budget is spent.
var ErrBudgetExhausted = errors.New("daily fetch budget exhausted")

// Config controls the pacing.
type Config struct {
	MinInterval   time.Duration // minimum spacing between turns
	JitterMin     time.Duration // extra delay added when waiting out MinInterval
	JitterMax     time.Duration
	MaxSleep      time.Duration // cap on a single politeness sleep
	BaseJitterMin time.Duration // small delay applied even when MinInterval already elapsed
	BaseJitterMax time.Duration
	DailyBudget   int // 0 means unlimited
}

// DefaultConfig mirrors the spacing the scrapers have always used.
func DefaultConfig() Config {
	return Config{
		MinInterval:   2 * time.Second,
		JitterMin:     1 * time.Second,
		JitterMax:     3 * time.Second,
		MaxSleep:      5 * time.Second,
		BaseJitterMin: 500 * time.Millisecond,
		BaseJitterMax: 2 * time.Second,
	}
}

// Limiter hands out turns. The lock only guards the bookkeeping; sleeping
// happens outside it.
type Limiter struct {
	cfg Config

	mu   sync.Mutex
	last time.Time
	day  string
	used int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func(lo, hi time.Duration) time.Duration
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
		rand:  uniform,
	}
}

// Wait blocks until the caller may issue the next fetch. It returns the
// context error if the caller gives up while sleeping.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	day := ""
	if l.cfg.DailyBudget > 0 {
		day = now.UTC().Format("2006-01-02")
		if day != l.day {
			l.day, l.used = day, 0
		}
		if l.used >= l.cfg.DailyBudget {
			l.mu.Unlock()
			return ErrBudgetExhausted
		}
		l.used++
	}

	elapsed := now.Sub(l.last)
	var wait time.Duration
	if elapsed < l.cfg.MinInterval {
		wait = l.cfg.MinInterval - elapsed + l.rand(l.cfg.JitterMin, l.cfg.JitterMax)
		// a future l.last is a turn already handed out; queue behind it uncapped
		if elapsed >= 0 && l.cfg.MaxSleep > 0 && wait > l.cfg.MaxSleep {
			wait = l.cfg.MaxSleep
		}
	} else {
		wait = l.rand(l.cfg.BaseJitterMin, l.cfg.BaseJitterMax)
	}
	prev, turn := l.last, now.Add(wait)
	l.last = turn
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		l.release(day, prev, turn)
		return err
	}
	return nil
}

// release hands back a turn that was never used. The slot is only rolled
// back when no later caller has queued behind it.
func (l *Limiter) release(day string, prev, turn time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if day != "" && day == l.day && l.used > 0 {
		l.used--
	}
	if l.last.Equal(turn) {
		l.last = prev
	}
}

// Usage reports how many turns were handed out today and the budget.
func (l *Limiter) Usage() (used, budget int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.day != l.now().UTC().Format("2006-01-02") {
		return 0, l.cfg.DailyBudget
	}
	return l.used, l.cfg.DailyBudget
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
