package models

import (
	"time"
)

// Receipt reasons. Every cent moved by the engine shows up in exactly one
// receipt row, so summing a batch reproduces the full allocation of the
// triggering payment.
const (
	ReasonAdminFee       = "admin_fee"
	ReasonDirectBonus    = "direct_bonus"
	ReasonLevelBonus     = "level_bonus"
	ReasonUplineBonus    = "upline_bonus"
	ReasonPoolAccrual    = "pool_accrual"
	ReasonCapOverflow    = "cap_overflow"
	ReasonChainTruncated = "chain_truncated"
	ReasonRounding       = "rounding"
	ReasonMatrixCycle    = "matrix_cycle"
	ReasonPoolPayout     = "pool_payout"
	ReasonWithdrawal     = "withdrawal_payout"
	ReasonReinvestment   = "reinvestment"
)

// Receipt records one credit or accrual. Recipient is a user address, or a
// pool id prefixed with "pool:" for accounting-only pool movements, or the
// configured fee recipient for admin fees.
type Receipt struct {
	ID        uint64 `gorm:"primaryKey"`
	BatchID   string `gorm:"size:40;index;not null"`
	Recipient string `gorm:"size:72;index;not null"`
	Amount    int64  `gorm:"not null"`
	Reason    string `gorm:"size:24;not null"`
	Level     int    `gorm:"not null;default:0"`
	CreatedAt time.Time
}
