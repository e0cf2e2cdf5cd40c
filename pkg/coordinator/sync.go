package coordinator

import (
	"context"
	"sync/atomic"

	"github.com/entrhq/guardian/pkg/rules"
)

// connFlag is the shared last-known-connectivity bit. It is written by the
// polling goroutine and read from the dispatch loop; last write wins.
type connFlag struct {
	v atomic.Bool
}

func (f *connFlag) Load() bool    { return f.v.Load() }
func (f *connFlag) Store(ok bool) { f.v.Store(ok) }

// syncRules recompiles the rule set for the current role, merges any
// server-delivered rules, and replaces the installed set in one atomic
// engine update. Safe to call from any goroutine; the engine serializes.
func (c *Coordinator) syncRules(ctx context.Context) {
	conn := c.cfg.Get()

	merged := c.compiler.Compile(conn.Role)

	server, err := c.backend.DNSRules(ctx, conn.Role)
	if err != nil {
		// Unreachable backend degrades to locally compiled rules only.
		if c.log != nil {
			c.log.Debugf("server rules unavailable for role %s: %v", conn.Role, err)
		}
	} else {
		merged = append(merged, rules.NormalizeServerRules(server)...)
	}

	if err := c.engine.Apply(ctx, merged); err != nil {
		// Not retried immediately; the next sync attempt picks it up.
		if c.log != nil {
			c.log.Errorf("rule sync for role %s failed: %v", conn.Role, err)
		}
		return
	}

	if c.log != nil {
		c.log.Infof("rule sync for role %s installed %d rules", conn.Role, len(merged))
	}
}

// checkConnectivity probes the backend status endpoint, updates the badge
// and the cached flag, and writes the last-known-connected flag back to the
// config store. Returns whether the backend is reachable.
func (c *Coordinator) checkConnectivity(ctx context.Context) bool {
	err := c.backend.Status(ctx)
	ok := err == nil

	c.connected.Store(ok)
	c.badge.SetAlert(!ok)

	if !ok && c.log != nil {
		c.log.Debugf("connectivity check failed: %v", err)
	}

	// SetConnected is change-guarded, so the writeback cannot loop through
	// the config subscription.
	if err := c.cfg.SetConnected(ok); err != nil && c.log != nil {
		c.log.Warnf("failed to persist connectivity flag: %v", err)
	}

	return ok
}
