package models

import (
	"time"
)

// Leader ranks, evaluated from team size and direct referral count.
const (
	RankMember      = 0
	RankShiningStar = 1
	RankSilverStar  = 2
)

type User struct {
	ID              uint64  `gorm:"primaryKey"`
	Address         string  `gorm:"size:64;uniqueIndex;not null"`
	Sponsor         string  `gorm:"size:64;index"`
	PackageLevel    int     `gorm:"not null"`
	TotalInvestment int64   `gorm:"not null;default:0"`
	TotalEarnings   int64   `gorm:"not null;default:0"`
	EarningsCap     int64   `gorm:"not null;default:0"`
	Balance         int64   `gorm:"not null;default:0"`
	TotalWithdrawn  int64   `gorm:"not null;default:0"`
	DirectReferrals int     `gorm:"not null;default:0"`
	TeamSize        int     `gorm:"not null;default:0"`
	Rank            int     `gorm:"not null;default:0"`
	ReferralCode    *string `gorm:"size:16;uniqueIndex"`

	// Forced-matrix slot. Parent is the matrix upline, which differs from
	// Sponsor when the user was placed by spillover.
	MatrixParent   string `gorm:"size:64;index"`
	MatrixLevel    int    `gorm:"not null;default:0"`
	MatrixPosition int64  `gorm:"not null;default:0"`
	MatrixFills    int64  `gorm:"not null;default:0"`
	MatrixCycles   int64  `gorm:"not null;default:0"`

	IsBlacklisted  bool `gorm:"not null;default:false"`
	IsActive       bool `gorm:"not null;default:true"`
	RegisteredAt   time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a copy safe to mutate inside an uncommitted operation.
func (u *User) Clone() *User {
	c := *u
	if u.ReferralCode != nil {
		code := *u.ReferralCode
		c.ReferralCode = &code
	}
	return &c
}

// RemainingCap is how much the user can still earn before hitting the cap.
func (u *User) RemainingCap() int64 {
	if u.TotalEarnings >= u.EarningsCap {
		return 0
	}
	return u.EarningsCap - u.TotalEarnings
}
