package ledger

import (
	"ledgerd/internal/models"
)

// creditWithCap is the single choke point for earnings. It credits at most
// the user's remaining cap headroom and redirects any overflow to the help
// pool, so no share of a payment is ever silently discarded.
func (t *txn) creditWithCap(u *models.User, amount int64, reason string, level int) (credited, overflow int64) {
	if amount <= 0 {
		return 0, 0
	}
	credited = amount
	if headroom := u.RemainingCap(); credited > headroom {
		credited = headroom
	}
	if credited > 0 {
		u.TotalEarnings += credited
		u.Balance += credited
		u.UpdatedAt = t.now
		t.receipt(u.Address, credited, reason, level)
	}
	overflow = amount - credited
	if overflow > 0 {
		t.accruePool(models.PoolHelp, overflow, models.ReasonCapOverflow)
	}
	return credited, overflow
}

// invest records a package purchase (or mandatory reinvestment) and
// recomputes the earnings cap.
func (t *txn) invest(u *models.User, amount int64) {
	u.TotalInvestment += amount
	u.EarningsCap = u.TotalInvestment * t.e.plan.CapMultiplier
	u.UpdatedAt = t.now
}
