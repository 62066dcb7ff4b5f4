// Package ratelimit paces calls against the upstream platform.
//
// The Gate produces randomized, cancellable delays from speed profiles. The
// Limiter is a token bucket shared by every upstream request.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
	"github.com/JakeFAU/insight-discovery/internal/metrics"
)

// Window is an inclusive delay range.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Delay kinds reported to metrics.
const (
	KindSearch  = "search"
	KindAccount = "account"
	KindJitter  = "jitter"
)

var (
	accountWindow = Window{Min: 2000 * time.Millisecond, Max: 5000 * time.Millisecond}
	jitterWindow  = Window{Min: 100 * time.Millisecond, Max: 1000 * time.Millisecond}
)

// Profile returns the delay window between keyword searches for a speed.
// Unknown speeds use the slowest profile.
func Profile(speed discovery.Speed) Window {
	switch speed {
	case discovery.SpeedHigh:
		return Window{Min: 400 * time.Millisecond, Max: 600 * time.Millisecond}
	case discovery.SpeedMedium:
		return Window{Min: 1000 * time.Millisecond, Max: 2000 * time.Millisecond}
	default:
		return Window{Min: 2000 * time.Millisecond, Max: 3000 * time.Millisecond}
	}
}

// Sleeper blocks for d or until ctx ends. It returns false when interrupted.
type Sleeper func(ctx context.Context, d time.Duration) bool

// Gate draws delays from windows and waits them out.
type Gate struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	sleep Sleeper
}

// Option customizes a Gate.
type Option func(*Gate)

// WithSleeper replaces the timer-based sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(g *Gate) { g.sleep = s }
}

// WithSeed makes the delay sequence deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Gate) { g.rnd = rand.New(rand.NewPCG(seed, seed)) }
}

// NewGate builds a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep: timerSleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Draw returns a uniformly random duration in w.
func (g *Gate) Draw(w Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return w.Min + time.Duration(g.rnd.Int64N(int64(w.Max-w.Min)+1))
}

// SearchDelay waits a speed-profile delay before an account search.
func (g *Gate) SearchDelay(ctx context.Context, speed discovery.Speed) error {
	return g.wait(ctx, KindSearch, g.Draw(Profile(speed)))
}

// AccountDelay waits the fixed 2–5 s delay before an account's article listing.
func (g *Gate) AccountDelay(ctx context.Context) error {
	return g.wait(ctx, KindAccount, g.Draw(accountWindow))
}

// Jitter waits 100–1000 ms before a bulk pipeline item.
func (g *Gate) Jitter(ctx context.Context) error {
	return g.wait(ctx, KindJitter, g.Draw(jitterWindow))
}

// Intn returns a random index in [0, n). It returns 0 when n <= 0.
func (g *Gate) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.IntN(n)
}

func (g *Gate) wait(ctx context.Context, kind string, d time.Duration) error {
	start := time.Now()
	ok := g.sleep(ctx, d)
	metrics.ObserveRateGateDelay(kind, time.Since(start))
	if !ok {
		return fmt.Errorf("%s delay interrupted: %w", kind, context.Cause(ctx))
	}
	return nil
}

func timerSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
