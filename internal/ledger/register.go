package ledger

import (
	"context"

	"github.com/google/uuid"

	"ledgerd/internal/models"
)

// PaymentEvent is the payment-received trigger: a registration or upgrade
// purchase by the payer. SponsorRef may be an address or a referral code and
// is only consulted on first registration.
type PaymentEvent struct {
	ExternalID   string
	Payer        string
	Amount       int64
	PackageLevel int
	SponsorRef   string
}

type PaymentResult struct {
	BatchID  string
	Kind     string
	UserID   uint64
	Receipts []models.Receipt
}

// ProcessPayment registers the payer (first purchase) or upgrades their
// package, then runs the full bonus distribution and, on registration,
// matrix placement. The operation is all-or-nothing: every validation
// failure aborts before any state is touched.
func (e *Engine) ProcessPayment(ctx context.Context, evt PaymentEvent) (*PaymentResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	externalID := evt.ExternalID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	if _, dup := e.st.extIDs[externalID]; dup {
		return nil, ErrDuplicatePayment
	}

	payer := normalizeAddress(evt.Payer)
	if payer == "" {
		return nil, ErrInvalidAddress
	}
	price, ok := e.plan.PackagePrice(evt.PackageLevel)
	if !ok {
		return nil, ErrUnknownPackage
	}
	if evt.Amount != price {
		return nil, ErrAmountMismatch
	}

	existing := e.st.users[payer]
	if existing == nil {
		return e.register(ctx, externalID, payer, evt)
	}
	return e.upgrade(ctx, externalID, existing, evt)
}

func (e *Engine) register(ctx context.Context, externalID, payer string, evt PaymentEvent) (*PaymentResult, error) {
	sponsorAddr := ""
	if evt.SponsorRef == "" {
		// Only the very first registration (the root user) may omit a
		// sponsor.
		if len(e.st.users) > 0 {
			return nil, ErrSponsorRequired
		}
	} else {
		resolved, err := e.resolveSponsorLocked(evt.SponsorRef)
		if err != nil {
			return nil, err
		}
		if err := e.checkSponsorCycle(payer, resolved); err != nil {
			return nil, err
		}
		sponsorAddr = resolved
	}

	t := e.newTxn()
	u := &models.User{
		ID:             e.st.nextID,
		Address:        payer,
		Sponsor:        sponsorAddr,
		PackageLevel:   evt.PackageLevel,
		IsActive:       true,
		RegisteredAt:   t.now,
		LastActivityAt: t.now,
		CreatedAt:      t.now,
		UpdatedAt:      t.now,
	}
	t.createUser(u)
	t.invest(u, evt.Amount)

	if sponsorAddr != "" {
		sp := t.user(sponsorAddr)
		sp.DirectReferrals++
		e.bumpTeamCounters(t, sponsorAddr)
	}

	t.payment = &models.Payment{
		ExternalID:   externalID,
		Payer:        payer,
		Amount:       evt.Amount,
		PackageLevel: evt.PackageLevel,
		Kind:         models.PaymentKindRegister,
		CreatedAt:    t.now,
	}

	e.distribute(t, u, evt.Amount)

	cycleOwners, err := t.placeUser(u)
	if err != nil {
		return nil, err
	}
	t.processCycles(cycleOwners)

	if err := e.commit(ctx, t); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.PaymentsProcessed.WithLabelValues(models.PaymentKindRegister).Inc()
	}
	e.log.Info("user registered",
		"address", payer,
		"id", u.ID,
		"sponsor", sponsorAddr,
		"package", evt.PackageLevel,
		"matrix_level", u.MatrixLevel,
		"matrix_position", u.MatrixPosition)

	return &PaymentResult{
		BatchID:  t.batchID,
		Kind:     models.PaymentKindRegister,
		UserID:   u.ID,
		Receipts: t.receipts,
	}, nil
}

func (e *Engine) upgrade(ctx context.Context, externalID string, existing *models.User, evt PaymentEvent) (*PaymentResult, error) {
	if existing.IsBlacklisted {
		return nil, ErrBlacklisted
	}
	if evt.PackageLevel <= existing.PackageLevel {
		return nil, ErrPackageDowngrade
	}

	t := e.newTxn()
	u := t.user(existing.Address)
	u.PackageLevel = evt.PackageLevel
	u.LastActivityAt = t.now
	t.invest(u, evt.Amount)

	t.payment = &models.Payment{
		ExternalID:   externalID,
		Payer:        u.Address,
		Amount:       evt.Amount,
		PackageLevel: evt.PackageLevel,
		Kind:         models.PaymentKindUpgrade,
		CreatedAt:    t.now,
	}

	e.distribute(t, u, evt.Amount)

	if err := e.commit(ctx, t); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.PaymentsProcessed.WithLabelValues(models.PaymentKindUpgrade).Inc()
	}
	e.log.Info("package upgraded",
		"address", u.Address,
		"package", evt.PackageLevel)

	return &PaymentResult{
		BatchID:  t.batchID,
		Kind:     models.PaymentKindUpgrade,
		UserID:   u.ID,
		Receipts: t.receipts,
	}, nil
}

// checkSponsorCycle rejects a registration whose sponsor chain would loop
// back through the new user. Sponsors are immutable, so this cannot happen
// for an unregistered payer, but the walk is kept as a hard guard on the
// acyclicity invariant.
func (e *Engine) checkSponsorCycle(payer, sponsor string) error {
	addr := sponsor
	for addr != "" {
		if addr == payer {
			return ErrSponsorCycle
		}
		u, ok := e.st.users[addr]
		if !ok {
			break
		}
		addr = u.Sponsor
	}
	return nil
}

// bumpTeamCounters increments team size along the whole sponsor chain and
// re-evaluates leader ranks on the way up.
func (e *Engine) bumpTeamCounters(t *txn, start string) {
	addr := start
	for addr != "" {
		u := t.user(addr)
		if u == nil {
			break
		}
		u.TeamSize++
		u.Rank = e.plan.RankFor(u.TeamSize, u.DirectReferrals)
		u.UpdatedAt = t.now
		addr = u.Sponsor
	}
}
