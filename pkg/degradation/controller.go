// Package degradation is the Degradation Controller (C9): it watches the
// hot store's and cloud client's health and derives the operating mode the
// rest of the system must respect (§4.9). Nothing outside this package
// decides the mode; everything else just asks Controller.Mode().
package degradation

import (
	"context"
	"sync"
	"time"

	"memhybrid.app/pkg/hotstore"
)

// Mode is one of the four operating modes in §4.9.
type Mode string

const (
	ModeHybrid    Mode = "hybrid"
	ModeHotOnly   Mode = "hotOnly"
	ModeCloudOnly Mode = "cloudOnly"
	ModeDemo      Mode = "demo"
)

// deriveMode maps hot-store/cloud health onto a mode. A real cloud client
// (not the offline Demo substitute) combined with a healthy hot store is
// Hybrid; losing either one degrades along the matrix in §4.9.
func deriveMode(hotHealthy, realCloud bool) Mode {
	switch {
	case hotHealthy && realCloud:
		return ModeHybrid
	case hotHealthy && !realCloud:
		return ModeHotOnly
	case !hotHealthy && realCloud:
		return ModeCloudOnly
	default:
		return ModeDemo
	}
}

// Controller periodically pings the hot store and records whether the
// cloud client is a real backend, then recomputes the mode.
type Controller struct {
	hot        hotstore.Client // nil when no hot store was ever configured
	realCloud  bool
	override   Mode
	pingPeriod time.Duration

	mu           sync.RWMutex
	mode         Mode
	hotConnected bool
}

// New builds a Controller. hot may be nil (no hot store configured at
// all, e.g. CloudOnly/Demo from startup); realCloud is false when the
// wired cloud client is the offline cloudclient.Demo substitute. override,
// if non-empty, pins the mode regardless of observed health - callers
// still get accurate HotConnected/CloudConnected readings either way.
func New(hot hotstore.Client, realCloud bool, override Mode) *Controller {
	c := &Controller{
		hot:        hot,
		realCloud:  realCloud,
		override:   override,
		pingPeriod: 10 * time.Second,
	}
	c.recompute(context.Background())
	return c
}

func (c *Controller) recompute(ctx context.Context) {
	hotHealthy := false
	if c.hot != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		hotHealthy = c.hot.Ping(pingCtx) == nil
		cancel()
	}

	mode := deriveMode(hotHealthy, c.realCloud)
	if c.override != "" {
		mode = c.override
	}

	c.mu.Lock()
	c.mode = mode
	c.hotConnected = hotHealthy
	c.mu.Unlock()
}

// Run starts the periodic health-check loop; it returns when ctx is
// canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.recompute(ctx)
		}
	}
}

// Mode returns the current operating mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// HotConnected reports whether the last health check found the hot store
// reachable.
func (c *Controller) HotConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hotConnected
}

// CloudConnected reports whether the wired cloud client is a real backend
// (as opposed to the offline Demo substitute). This never changes after
// construction - cloud credential presence is a startup-time decision.
func (c *Controller) CloudConnected() bool {
	return c.realCloud
}

// UsesHotStore reports whether the current mode reads/writes the hot
// store at all (Hybrid and HotOnly do; CloudOnly and Demo do not per
// §4.9's "GetMemory always misses" / "process-local map" rules).
func (m Mode) UsesHotStore() bool {
	return m == ModeHybrid || m == ModeHotOnly
}

// UsesPubSub reports whether async job dispatch via the pub/sub bus is
// available in this mode. CloudOnly explicitly disables it ("jobs run
// inline"); Demo has no hot store to publish through either.
func (m Mode) UsesPubSub() bool {
	return m == ModeHybrid || m == ModeHotOnly
}
