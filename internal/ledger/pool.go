package ledger

import (
	"context"
	"time"

	"ledgerd/internal/models"
	"ledgerd/internal/plan"
)

type DistributionReport struct {
	Pool        string
	BatchID     string
	Recipients  int
	Distributed int64
	Remainder   int64
	RanAt       time.Time
}

// DistributePool distributes an accumulated pool to its eligible recipient
// set. Help pool: equal split among active, non-blacklisted, under-cap
// users. Leader pool: one half weighted to Shining Star ranks, the other to
// Silver Star ranks, equal split inside each set. The club pool only drains
// through matrix cycles and cannot be distributed here.
//
// Non-fatal failures (nothing accrued, no eligible recipients, cycle window
// not elapsed) leave the balance untouched for the next cycle.
func (e *Engine) DistributePool(ctx context.Context, poolID string) (*DistributionReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var interval time.Duration
	switch poolID {
	case models.PoolHelp:
		interval = e.plan.HelpPoolInterval
	case models.PoolLeader:
		interval = e.plan.LeaderPoolInterval
	case models.PoolClub:
		return nil, ErrPoolNotDistributable
	default:
		return nil, ErrUnknownPool
	}

	now := e.clock.Now().UTC()
	current := e.st.pools[poolID]
	if !current.LastDistribution.IsZero() && now.Sub(current.LastDistribution) < interval {
		return nil, ErrDistributionAlreadyRun
	}
	if current.Balance <= 0 {
		return nil, ErrNothingToDistribute
	}

	t := e.newTxn()
	var distributed int64
	var recipients int
	switch poolID {
	case models.PoolHelp:
		distributed, recipients = e.distributeHelp(t)
	case models.PoolLeader:
		distributed, recipients = e.distributeLeader(t)
	}
	if recipients == 0 {
		return nil, ErrNoEligibleRecipients
	}

	pool := t.pool(poolID)
	pool.LastDistribution = now
	pool.UpdatedAt = t.now

	if err := e.commit(ctx, t); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.PoolDistributions.WithLabelValues(poolID).Inc()
	}

	report := &DistributionReport{
		Pool:        poolID,
		BatchID:     t.batchID,
		Recipients:  recipients,
		Distributed: distributed,
		Remainder:   e.st.pools[poolID].Balance,
		RanAt:       now,
	}
	e.log.Info("pool distributed",
		"pool", poolID,
		"recipients", recipients,
		"distributed", distributed,
		"remainder", report.Remainder)
	return report, nil
}

func (e *Engine) distributeHelp(t *txn) (int64, int) {
	var eligible []string
	for _, addr := range e.usersInIDOrder() {
		u := e.st.users[addr]
		if u.IsActive && !u.IsBlacklisted && u.RemainingCap() > 0 {
			eligible = append(eligible, addr)
		}
	}
	if len(eligible) == 0 {
		return 0, 0
	}

	balance := t.pool(models.PoolHelp).Balance
	per := balance / int64(len(eligible))
	if per <= 0 {
		return 0, 0
	}
	total := per * int64(len(eligible))
	t.drainPool(models.PoolHelp, total, models.ReasonPoolPayout)
	for _, addr := range eligible {
		// Cap overflow flows straight back into the help pool.
		t.creditWithCap(t.user(addr), per, models.ReasonPoolPayout, 0)
	}
	return total, len(eligible)
}

func (e *Engine) distributeLeader(t *txn) (int64, int) {
	var shining, silver []string
	for _, addr := range e.usersInIDOrder() {
		u := e.st.users[addr]
		if !u.IsActive || u.IsBlacklisted {
			continue
		}
		switch u.Rank {
		case models.RankShiningStar:
			shining = append(shining, addr)
		case models.RankSilverStar:
			silver = append(silver, addr)
		}
	}
	if len(shining) == 0 && len(silver) == 0 {
		return 0, 0
	}

	balance := t.pool(models.PoolLeader).Balance
	shiningShare := plan.Share(balance, e.plan.ShiningStarBps)
	silverShare := balance - shiningShare

	var distributed int64
	paySet := func(set []string, share int64) {
		if len(set) == 0 || share <= 0 {
			// An empty rank set leaves its half in the pool.
			return
		}
		per := share / int64(len(set))
		if per <= 0 {
			return
		}
		total := per * int64(len(set))
		t.drainPool(models.PoolLeader, total, models.ReasonPoolPayout)
		for _, addr := range set {
			t.creditWithCap(t.user(addr), per, models.ReasonPoolPayout, 0)
		}
		distributed += total
	}
	paySet(shining, shiningShare)
	paySet(silver, silverShare)
	if distributed == 0 {
		return 0, 0
	}
	return distributed, len(shining) + len(silver)
}

// DistributeDuePools runs every cadence-gated pool whose window has elapsed.
// Used by the background worker; gate and emptiness rejections are expected
// and only logged at debug.
func (e *Engine) DistributeDuePools(ctx context.Context) []*DistributionReport {
	var reports []*DistributionReport
	for _, poolID := range []string{models.PoolHelp, models.PoolLeader} {
		report, err := e.DistributePool(ctx, poolID)
		if err != nil {
			e.log.Debug("pool distribution skipped", "pool", poolID, "reason", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports
}
