package ledger

import (
	"errors"
)

// Validation errors: rejected before any state mutation, caller may retry
// with corrected input.
var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrNotRegistered        = errors.New("address is not registered")
	ErrUnknownReferralCode  = errors.New("unknown referral code")
	ErrAlreadyHasCode       = errors.New("user already has a referral code")
	ErrSponsorRequired      = errors.New("sponsor is required")
	ErrSponsorCycle         = errors.New("sponsor chain would contain a cycle")
	ErrPackageDowngrade     = errors.New("package level can only increase")
	ErrUnknownPackage       = errors.New("unknown package level")
	ErrAmountMismatch       = errors.New("amount does not match package price")
	ErrDuplicatePayment     = errors.New("payment already processed")
	ErrBlacklisted          = errors.New("user is blacklisted")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientBalance  = errors.New("requested amount exceeds balance")
	ErrMatrixFull           = errors.New("matrix depth limit exceeded")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrPoolNotDistributable = errors.New("pool is not distributed on a cadence")
)

// Non-fatal distribution outcomes: the pool balance persists to the next
// cycle.
var (
	ErrNoEligibleRecipients   = errors.New("no eligible recipients")
	ErrDistributionAlreadyRun = errors.New("distribution already ran this cycle")
	ErrNothingToDistribute    = errors.New("pool balance is zero")
)
