package guard

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/config"
)

// visitor tracks the request count for one source address inside the current
// 60 second window.
type visitor struct {
	count       int
	windowReset time.Time
}

// lockout tracks repeated failures for one source address.
type lockout struct {
	failures     int
	blockedUntil time.Time
}

// Decision is the outcome of a rate-limit check.
type Decision int

const (
	Allowed Decision = iota
	Throttled
	Blocked
)

// Guard holds the per-address abuse counters. Visitors and lockouts live in
// separate maps under separate mutexes so that rate-limit bookkeeping never
// contends with failure bookkeeping.
type Guard struct {
	visitorsMu sync.Mutex
	visitors   map[string]*visitor

	lockoutsMu sync.Mutex
	lockouts   map[string]*lockout

	cfg      *config.Config
	stopChan chan struct{}
}

// New creates an abuse guard and starts its stale-entry pruner.
func New(cfg *config.Config) *Guard {
	g := &Guard{
		visitors: make(map[string]*visitor),
		lockouts: make(map[string]*lockout),
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.prune(time.Now())
			case <-g.stopChan:
				return
			}
		}
	}()

	return g
}

// Stop halts the background pruner.
func (g *Guard) Stop() {
	close(g.stopChan)
}

// Check evaluates one request from the given address. A blocked address is
// rejected regardless of window state; a throttled request also counts as a
// failure toward lockout.
func (g *Guard) Check(addr string, now time.Time) Decision {
	if g.isBlocked(addr, now) {
		return Blocked
	}

	g.visitorsMu.Lock()
	v, ok := g.visitors[addr]
	if !ok || now.After(v.windowReset) {
		v = &visitor{windowReset: now.Add(time.Minute)}
		g.visitors[addr] = v
	}
	v.count++
	over := v.count > g.cfg.MaxRequestsPerMinute
	g.visitorsMu.Unlock()

	if over {
		g.Fail(addr, now)
		return Throttled
	}
	return Allowed
}

// Fail records one failed or rejected state-changing request. Crossing the
// configured threshold blocks the address until the block self-expires.
func (g *Guard) Fail(addr string, now time.Time) {
	g.lockoutsMu.Lock()
	defer g.lockoutsMu.Unlock()

	l, ok := g.lockouts[addr]
	if !ok {
		l = &lockout{}
		g.lockouts[addr] = l
	}
	l.failures++
	if l.failures >= g.cfg.MaxFailedAttempts && l.blockedUntil.Before(now) {
		l.blockedUntil = now.Add(time.Duration(g.cfg.BlockTimeSeconds) * time.Second)
		log.Printf("Warning: address %s blocked until %s after %d failures",
			addr, l.blockedUntil.Format(time.RFC3339), l.failures)
	}
}

func (g *Guard) isBlocked(addr string, now time.Time) bool {
	g.lockoutsMu.Lock()
	defer g.lockoutsMu.Unlock()

	l, ok := g.lockouts[addr]
	if !ok {
		return false
	}
	if l.blockedUntil.IsZero() {
		return false
	}
	if now.After(l.blockedUntil) {
		// Block expired; start the failure count over.
		delete(g.lockouts, addr)
		return false
	}
	return true
}

// prune drops window entries that rolled over and lockouts that expired.
func (g *Guard) prune(now time.Time) {
	g.visitorsMu.Lock()
	for addr, v := range g.visitors {
		if now.After(v.windowReset) {
			delete(g.visitors, addr)
		}
	}
	g.visitorsMu.Unlock()

	g.lockoutsMu.Lock()
	for addr, l := range g.lockouts {
		if !l.blockedUntil.IsZero() && now.After(l.blockedUntil) {
			delete(g.lockouts, addr)
		}
	}
	g.lockoutsMu.Unlock()
}

// RateLimit returns an echo middleware enforcing the per-address window and
// lockout table.
func (g *Guard) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch g.Check(c.RealIP(), time.Now()) {
			case Blocked:
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "address temporarily blocked",
				})
			case Throttled:
				log.Printf("Warning: rate limit exceeded for %s", c.RealIP())
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "too many requests, slow down",
				})
			}
			return next(c)
		}
	}
}
