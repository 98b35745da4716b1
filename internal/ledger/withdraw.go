package ledger

import (
	"context"

	"ledgerd/internal/models"
	"ledgerd/internal/plan"
)

type WithdrawalResult struct {
	BatchID    string
	Payout     int64
	Reinvested int64
	Receipts   []models.Receipt
}

// Withdraw pays out the tier fraction of the requested amount immediately
// and mandatorily reinvests the remainder. The reinvested portion is treated
// like a mini purchase: it raises the user's total investment (and cap) and
// is re-allocated across the level walk, the upline walk and the help pool.
func (e *Engine) Withdraw(ctx context.Context, address string, amount int64) (*WithdrawalResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr := normalizeAddress(address)
	existing, ok := e.st.users[addr]
	if !ok {
		return nil, ErrNotRegistered
	}
	if existing.IsBlacklisted {
		return nil, ErrBlacklisted
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > existing.Balance {
		return nil, ErrInsufficientBalance
	}

	payoutBps := e.plan.PayoutBps(existing.DirectReferrals)
	payout := plan.Share(amount, payoutBps)
	reinvested := amount - payout

	t := e.newTxn()
	u := t.user(addr)
	u.Balance -= amount
	u.TotalWithdrawn += payout
	u.LastActivityAt = t.now
	u.UpdatedAt = t.now
	t.receipt(addr, payout, models.ReasonWithdrawal, 0)

	if reinvested > 0 {
		t.invest(u, reinvested)
		e.reinvest(t, u, reinvested)
	}

	if err := e.commit(ctx, t); err != nil {
		return nil, err
	}
	e.log.Info("withdrawal processed",
		"address", addr,
		"amount", amount,
		"payout", payout,
		"reinvested", reinvested)

	return &WithdrawalResult{
		BatchID:    t.batchID,
		Payout:     payout,
		Reinvested: reinvested,
		Receipts:   t.receipts,
	}, nil
}

// reinvest allocates the mandatory reinvestment: a level walk and an upline
// walk sized by the reinvestment split, with the help-pool share and every
// unreachable remainder accruing to the help pool.
func (e *Engine) reinvest(t *txn, payer *models.User, amount int64) {
	p := e.plan
	allocated := int64(0)

	levelTotal := plan.Share(amount, p.ReinvestLevelBps)
	allocated += levelTotal
	levelBpsSum := int64(0)
	for _, bps := range p.LevelBps {
		levelBpsSum += bps
	}
	levelPaid := int64(0)
	ancestor := payer.Sponsor
	for i, bps := range p.LevelBps {
		share := levelTotal * bps / levelBpsSum
		u := t.user(ancestor)
		if u == nil {
			break
		}
		credited, overflow := t.creditWithCap(u, share, models.ReasonReinvestment, i+1)
		levelPaid += credited + overflow
		ancestor = u.Sponsor
	}
	if leftover := levelTotal - levelPaid; leftover > 0 {
		t.accruePool(models.PoolHelp, leftover, models.ReasonChainTruncated)
	}

	uplineTotal := plan.Share(amount, p.ReinvestUplineBps)
	allocated += uplineTotal
	per := uplineTotal / int64(p.UplineLevels)
	uplinePaid := int64(0)
	ancestor = payer.Sponsor
	if per > 0 {
		for i := 0; i < p.UplineLevels; i++ {
			u := t.user(ancestor)
			if u == nil {
				break
			}
			t.creditWithCap(u, per, models.ReasonReinvestment, i+1)
			uplinePaid += per
			ancestor = u.Sponsor
		}
	}
	if leftover := uplineTotal - uplinePaid; leftover > 0 {
		t.accruePool(models.PoolHelp, leftover, models.ReasonChainTruncated)
	}

	t.accruePool(models.PoolHelp, plan.Share(amount, p.ReinvestHelpBps), models.ReasonReinvestment)
	allocated += plan.Share(amount, p.ReinvestHelpBps)

	if rem := amount - allocated; rem > 0 {
		t.accruePool(models.PoolHelp, rem, models.ReasonRounding)
	}
}
