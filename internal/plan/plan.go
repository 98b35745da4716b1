// Package plan holds the compensation-plan configuration: package prices,
// commission splits, earnings-cap multiplier, withdrawal tiers, matrix shape
// and pool cadences. All monetary amounts are integer cents and all
// percentages are basis points of 10000.
package plan

import (
	"errors"
	"fmt"
	"time"
)

const BpsDenominator = 10000

type WithdrawalTier struct {
	MinDirects int
	PayoutBps  int64
}

type Plan struct {
	// PackagePrices[i] is the price of package level i+1, in cents.
	PackagePrices []int64

	// AdminFeeBps is taken off the top of the gross payment and routed to
	// the fee recipient, outside the earnings cap.
	AdminFeeBps int64

	// Split of the net (post-fee) amount. DirectBps plus the sum of
	// LevelBps plus UplineBps plus the three pool shares must equal
	// BpsDenominator.
	DirectBps     int64
	LevelBps      []int64
	UplineBps     int64
	UplineLevels  int
	LeaderPoolBps int64
	HelpPoolBps   int64
	ClubPoolBps   int64

	// CapMultiplier caps lifetime earnings at this multiple of total
	// investment.
	CapMultiplier int64

	// WithdrawalTiers must be sorted by MinDirects ascending with
	// non-decreasing payout fractions.
	WithdrawalTiers []WithdrawalTier

	// Reinvested withdrawal remainder is re-allocated like a mini purchase.
	ReinvestLevelBps  int64
	ReinvestUplineBps int64
	ReinvestHelpBps   int64

	// Forced matrix shape.
	MatrixWidth      int
	MatrixDepthLimit int

	// CycleBonusBps of the owner's package price is paid per matrix cycle,
	// funded from the club pool.
	CycleBonusBps int64

	HelpPoolInterval   time.Duration
	LeaderPoolInterval time.Duration

	// Leader-rank thresholds and the leader-pool split between rank sets.
	ShiningStarTeam    int
	ShiningStarDirects int
	SilverStarTeam     int
	ShiningStarBps     int64

	// Users with no payment or withdrawal inside this window are swept
	// inactive and lose pool eligibility until they act again.
	ActivityWindow time.Duration
}

// Default returns the canonical plan: $30/$50/$100/$200 packages, 5% admin
// fee, 40% direct, 10% over ten levels, 10% across thirty uplines, 10%
// leader pool, 25% help pool, 5% club pool, 4x cap, 70/75/80 withdrawal
// tiers at 0/5/20 directs, binary matrix.
func Default() *Plan {
	return &Plan{
		PackagePrices: []int64{3000, 5000, 10000, 20000},

		AdminFeeBps: 500,

		DirectBps:     4000,
		LevelBps:      []int64{300, 100, 100, 100, 100, 100, 50, 50, 50, 50},
		UplineBps:     1000,
		UplineLevels:  30,
		LeaderPoolBps: 1000,
		HelpPoolBps:   2500,
		ClubPoolBps:   500,

		CapMultiplier: 4,

		WithdrawalTiers: []WithdrawalTier{
			{MinDirects: 0, PayoutBps: 7000},
			{MinDirects: 5, PayoutBps: 7500},
			{MinDirects: 20, PayoutBps: 8000},
		},

		ReinvestLevelBps:  4000,
		ReinvestUplineBps: 3000,
		ReinvestHelpBps:   3000,

		MatrixWidth:      2,
		MatrixDepthLimit: 64,
		CycleBonusBps:    500,

		HelpPoolInterval:   7 * 24 * time.Hour,
		LeaderPoolInterval: 14 * 24 * time.Hour,

		ShiningStarTeam:    250,
		ShiningStarDirects: 10,
		SilverStarTeam:     500,
		ShiningStarBps:     5000,

		ActivityWindow: 90 * 24 * time.Hour,
	}
}

func (p *Plan) Validate() error {
	if len(p.PackagePrices) == 0 {
		return errors.New("plan: no package prices")
	}
	for i, price := range p.PackagePrices {
		if price <= 0 {
			return fmt.Errorf("plan: package %d has non-positive price", i+1)
		}
		if i > 0 && price <= p.PackagePrices[i-1] {
			return fmt.Errorf("plan: package prices must be strictly increasing at level %d", i+1)
		}
	}
	if p.AdminFeeBps < 0 || p.AdminFeeBps >= BpsDenominator {
		return errors.New("plan: admin fee out of range")
	}

	levelTotal := int64(0)
	for i, bps := range p.LevelBps {
		if bps < 0 {
			return fmt.Errorf("plan: negative level bonus at level %d", i+1)
		}
		levelTotal += bps
	}
	split := p.DirectBps + levelTotal + p.UplineBps + p.LeaderPoolBps + p.HelpPoolBps + p.ClubPoolBps
	if split != BpsDenominator {
		return fmt.Errorf("plan: net split sums to %d bps, want %d", split, BpsDenominator)
	}

	if p.UplineLevels <= 0 {
		return errors.New("plan: upline levels must be positive")
	}
	if p.CapMultiplier <= 0 {
		return errors.New("plan: cap multiplier must be positive")
	}

	if len(p.WithdrawalTiers) == 0 {
		return errors.New("plan: no withdrawal tiers")
	}
	if p.WithdrawalTiers[0].MinDirects != 0 {
		return errors.New("plan: first withdrawal tier must start at 0 directs")
	}
	for i, tier := range p.WithdrawalTiers {
		if tier.PayoutBps < 0 || tier.PayoutBps > BpsDenominator {
			return fmt.Errorf("plan: withdrawal tier %d payout out of range", i)
		}
		if i > 0 {
			prev := p.WithdrawalTiers[i-1]
			if tier.MinDirects <= prev.MinDirects {
				return fmt.Errorf("plan: withdrawal tiers not sorted at index %d", i)
			}
			if tier.PayoutBps < prev.PayoutBps {
				return fmt.Errorf("plan: withdrawal payout decreases at index %d", i)
			}
		}
	}

	if p.ReinvestLevelBps+p.ReinvestUplineBps+p.ReinvestHelpBps != BpsDenominator {
		return errors.New("plan: reinvestment allocation does not sum to 10000 bps")
	}

	if p.MatrixWidth < 2 {
		return errors.New("plan: matrix width must be at least 2")
	}
	if p.MatrixDepthLimit <= 0 {
		return errors.New("plan: matrix depth limit must be positive")
	}
	if p.CycleBonusBps < 0 || p.CycleBonusBps > BpsDenominator {
		return errors.New("plan: cycle bonus out of range")
	}
	if p.ShiningStarBps < 0 || p.ShiningStarBps > BpsDenominator {
		return errors.New("plan: shining star share out of range")
	}
	if p.HelpPoolInterval <= 0 || p.LeaderPoolInterval <= 0 {
		return errors.New("plan: pool intervals must be positive")
	}
	if p.ActivityWindow <= 0 {
		return errors.New("plan: activity window must be positive")
	}
	return nil
}

// PackagePrice returns the price of the given package level.
func (p *Plan) PackagePrice(level int) (int64, bool) {
	if level < 1 || level > len(p.PackagePrices) {
		return 0, false
	}
	return p.PackagePrices[level-1], true
}

// Share computes the floored basis-point share of an amount.
func Share(amount, bps int64) int64 {
	return amount * bps / BpsDenominator
}

// PayoutBps returns the immediate-payout fraction for a direct-referral
// count. Tiers are keyed by minimum count, so the highest qualifying tier
// wins.
func (p *Plan) PayoutBps(directReferrals int) int64 {
	bps := p.WithdrawalTiers[0].PayoutBps
	for _, tier := range p.WithdrawalTiers {
		if directReferrals >= tier.MinDirects {
			bps = tier.PayoutBps
		}
	}
	return bps
}

// RankFor evaluates the leader rank for the given counters.
func (p *Plan) RankFor(teamSize, directReferrals int) int {
	if teamSize >= p.SilverStarTeam {
		return 2
	}
	if teamSize >= p.ShiningStarTeam && directReferrals >= p.ShiningStarDirects {
		return 1
	}
	return 0
}
