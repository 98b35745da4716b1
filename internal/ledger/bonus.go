package ledger

import (
	"ledgerd/internal/models"
	"ledgerd/internal/plan"
)

// distribute allocates a payment: admin fee off the top, then the net split
// across direct bonus, level walk, upline walk and pool accruals. Every cent
// of the payment ends up in exactly one receipt; shares that cannot reach a
// recipient (short chain, cap overflow, integer rounding) land in the help
// pool.
func (e *Engine) distribute(t *txn, payer *models.User, amount int64) {
	p := e.plan

	fee := plan.Share(amount, p.AdminFeeBps)
	if fee > 0 {
		t.receipt(e.feeRecipient, fee, models.ReasonAdminFee, 0)
	}
	net := amount - fee
	allocated := int64(0)

	// 1. Direct sponsor bonus
	direct := plan.Share(net, p.DirectBps)
	allocated += direct
	if sp := t.user(payer.Sponsor); sp != nil {
		t.creditWithCap(sp, direct, models.ReasonDirectBonus, 0)
	} else {
		t.accruePool(models.PoolHelp, direct, models.ReasonChainTruncated)
	}

	// 2. Level bonus walk, decaying percentages
	ancestor := payer.Sponsor
	for i, bps := range p.LevelBps {
		share := plan.Share(net, bps)
		allocated += share
		if share == 0 {
			continue
		}
		u := t.user(ancestor)
		if u == nil {
			t.accruePool(models.PoolHelp, share, models.ReasonChainTruncated)
			ancestor = ""
			continue
		}
		t.creditWithCap(u, share, models.ReasonLevelBonus, i+1)
		ancestor = u.Sponsor
	}

	// 3. Global upline bonus, equal share across the chain
	uplineTotal := plan.Share(net, p.UplineBps)
	allocated += uplineTotal
	per := uplineTotal / int64(p.UplineLevels)
	paid := 0
	ancestor = payer.Sponsor
	if per > 0 {
		for i := 0; i < p.UplineLevels; i++ {
			u := t.user(ancestor)
			if u == nil {
				break
			}
			t.creditWithCap(u, per, models.ReasonUplineBonus, i+1)
			paid++
			ancestor = u.Sponsor
		}
	}
	if leftover := uplineTotal - per*int64(paid); leftover > 0 {
		t.accruePool(models.PoolHelp, leftover, models.ReasonChainTruncated)
	}

	// 4. Pool contributions
	for _, alloc := range []struct {
		pool string
		bps  int64
	}{
		{models.PoolLeader, p.LeaderPoolBps},
		{models.PoolHelp, p.HelpPoolBps},
		{models.PoolClub, p.ClubPoolBps},
	} {
		share := plan.Share(net, alloc.bps)
		allocated += share
		t.accruePool(alloc.pool, share, models.ReasonPoolAccrual)
	}

	// 5. Integer rounding remainder
	if rem := net - allocated; rem > 0 {
		t.accruePool(models.PoolHelp, rem, models.ReasonRounding)
	}
}
