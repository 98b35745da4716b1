// Package worker runs the cadence-driven side of the engine: firing due pool
// distribution cycles and sweeping activity flags.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"ledgerd/internal/ledger"
	"ledgerd/internal/models"
	"ledgerd/internal/plan"
)

// WindowStore is the slice of the redis client used to claim distribution
// windows across processes.
type WindowStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Distributor struct {
	Engine   *ledger.Engine
	Redis    WindowStore
	Plan     *plan.Plan
	Log      *slog.Logger
	Clock    clockwork.Clock
	Interval time.Duration
}

func NewDistributor(engine *ledger.Engine, rdb *redis.Client, p *plan.Plan, log *slog.Logger, clock clockwork.Clock) *Distributor {
	d := &Distributor{
		Engine:   engine,
		Plan:     p,
		Log:      log,
		Clock:    clock,
		Interval: time.Hour,
	}
	if rdb != nil {
		d.Redis = rdb
	}
	return d
}

// Run ticks until the context ends. The first pass runs immediately.
func (d *Distributor) Run(ctx context.Context) error {
	ticker := d.Clock.NewTicker(d.Interval)
	defer ticker.Stop()

	d.Log.Info("pool distribution worker started", "tick", d.Interval)
	d.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			d.runCycle(ctx)
		}
	}
}

func (d *Distributor) runCycle(ctx context.Context) {
	for _, poolID := range []string{models.PoolHelp, models.PoolLeader} {
		if !d.claimWindow(ctx, poolID) {
			continue
		}
		report, err := d.Engine.DistributePool(ctx, poolID)
		if err != nil {
			// Give the window back so a later tick can retry once the
			// engine gate opens or the pool fills.
			d.releaseWindow(ctx, poolID)
			d.Log.Debug("pool distribution skipped", "pool", poolID, "reason", err)
			continue
		}
		d.Log.Info("pool distribution cycle complete",
			"pool", report.Pool,
			"recipients", report.Recipients,
			"distributed", report.Distributed)
	}

	if _, err := d.Engine.SweepActivity(ctx); err != nil {
		d.Log.Error("activity sweep failed", "error", err)
	}
}

func (d *Distributor) windowKey(poolID string) (string, time.Duration, bool) {
	var interval time.Duration
	switch poolID {
	case models.PoolHelp:
		interval = d.Plan.HelpPoolInterval
	case models.PoolLeader:
		interval = d.Plan.LeaderPoolInterval
	default:
		return "", 0, false
	}
	window := d.Clock.Now().UTC().Truncate(interval)
	return fmt.Sprintf("pooldist_%s_%d", poolID, window.Unix()), interval, true
}

// claimWindow takes a redis SetNX key for the current distribution window so
// two engined processes sharing one database never both fire. The engine's
// own clock gate stays authoritative; this is only the cross-process guard.
func (d *Distributor) claimWindow(ctx context.Context, poolID string) bool {
	key, interval, ok := d.windowKey(poolID)
	if !ok {
		return false
	}
	if d.Redis == nil {
		return true
	}

	claimed, err := d.Redis.SetNX(ctx, key, "claimed", interval).Result()
	if err != nil {
		// Redis being down must not stall distributions; the clock gate
		// still prevents double payout within one process.
		d.Log.Warn("failed to claim distribution window", "pool", poolID, "error", err)
		return true
	}
	return claimed
}

// releaseWindow drops a claim whose distribution did not run, so the claim
// only ever marks a completed cycle.
func (d *Distributor) releaseWindow(ctx context.Context, poolID string) {
	key, _, ok := d.windowKey(poolID)
	if !ok || d.Redis == nil {
		return
	}
	if err := d.Redis.Del(ctx, key).Err(); err != nil {
		d.Log.Warn("failed to release distribution window", "pool", poolID, "error", err)
	}
}
