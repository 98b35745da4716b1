package models

import (
	"time"
)

// Pool identifiers. The club pool funds matrix-cycle bonuses and is never
// distributed on a cadence.
const (
	PoolHelp   = "help"
	PoolLeader = "leader"
	PoolClub   = "club"
)

// PoolIDs lists every accumulator in distribution order.
var PoolIDs = []string{PoolHelp, PoolLeader, PoolClub}

type Pool struct {
	ID               string `gorm:"primaryKey;size:16"`
	Balance          int64  `gorm:"not null;default:0"`
	TotalDistributed int64  `gorm:"not null;default:0"`
	LastDistribution time.Time
	UpdatedAt        time.Time
}

func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}
