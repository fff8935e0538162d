// Package bugreport forwards unexpected server failures to an external
// sink without flooding it when one broken route is hit in a loop.
package bugreport

import (
	"log/slog"
	"sync"
	"time"
)

// Reporter receives 500-class failures. Origin identifies where the
// failure surfaced (a chunk id or a request path).
type Reporter interface {
	Report(origin string, err error)
}

// Func adapts a function to the Reporter interface.
type Func func(origin string, err error)

// Report calls f.
func (f Func) Report(origin string, err error) { f(origin, err) }

// LogReporter writes reports to a structured logger. It is the default
// sink for deployments without an external tracker.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs the failure at error level.
func (r *LogReporter) Report(origin string, err error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("unhandled failure", "origin", origin, "error", err)
}

// Cooldown wraps a Reporter and drops repeats of the same failure
// within the window. Two reports are the same failure when origin and
// error message both match.
type Cooldown struct {
	Next   Reporter
	Window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// DefaultCooldownWindow suppresses repeats for five minutes.
const DefaultCooldownWindow = 5 * time.Minute

// NewCooldown wraps next with repeat suppression.
func NewCooldown(next Reporter, window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &Cooldown{
		Next:   next,
		Window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Report forwards the failure unless an identical one was forwarded
// within the window.
func (c *Cooldown) Report(origin string, err error) {
	if err == nil {
		return
	}
	key := origin + "\x00" + err.Error()

	c.mu.Lock()
	now := c.now()
	last, ok := c.seen[key]
	if ok && now.Sub(last) < c.Window {
		c.mu.Unlock()
		return
	}
	c.seen[key] = now
	// Drop stale entries opportunistically so the map stays bounded.
	if len(c.seen) > 1024 {
		for k, t := range c.seen {
			if now.Sub(t) >= c.Window {
				delete(c.seen, k)
			}
		}
	}
	c.mu.Unlock()

	c.Next.Report(origin, err)
}
