// Package hostgate throttles SMTP probes per destination host: at most N
// concurrent sessions per host and a minimum interval between session starts.
package hostgate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate hands out per-host probe slots. The zero value is not usable; call New.
type Gate struct {
	maxConns int
	interval time.Duration

	mu    sync.Mutex
	hosts map[string]*host
}

type host struct {
	slots   chan struct{}
	limiter *rate.Limiter
}

// New creates a gate allowing maxConns concurrent sessions per host
// (minimum 1) started at least interval apart. interval <= 0 disables pacing.
func New(maxConns int, interval time.Duration) *Gate {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Gate{
		maxConns: maxConns,
		interval: interval,
		hosts:    make(map[string]*host),
	}
}

// Acquire blocks until a slot for name is free and the pacing interval has
// elapsed. The returned release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context, name string) (release func(), err error) {
	h := g.host(name)

	select {
	case h.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := h.limiter.Wait(ctx); err != nil {
		<-h.slots
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// the limiter refuses up front when the next start is past the deadline
		return nil, fmt.Errorf("%w: next start on %s is after the deadline", context.DeadlineExceeded, name)
	}

	var once sync.Once
	return func() { once.Do(func() { <-h.slots }) }, nil
}

// Hosts returns the number of hosts the gate has seen (for diagnostics).
func (g *Gate) Hosts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.hosts)
}

func (g *Gate) host(name string) *host {
	name = strings.ToLower(name)

	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.hosts[name]; ok {
		return h
	}
	limit := rate.Inf
	if g.interval > 0 {
		limit = rate.Every(g.interval)
	}
	h := &host{
		slots:   make(chan struct{}, g.maxConns),
		limiter: rate.NewLimiter(limit, 1),
	}
	g.hosts[name] = h
	return h
}
