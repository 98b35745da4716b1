// Package ledger implements the compensation engine: user registry, referral
// resolution, bonus distribution, forced-matrix placement, pool distribution
// and the earnings-cap/withdrawal controller.
//
// The engine is a serially-ordered state machine. All mutating operations
// take the write lock, build a change set against working copies, persist it
// through the Store, and only then fold it into the in-memory state, so every
// operation is all-or-nothing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"ledgerd/internal/metrics"
	"ledgerd/internal/models"
	"ledgerd/internal/plan"
	"ledgerd/internal/store"
)

// Emitter receives committed receipt batches. Calls are fire-and-forget;
// they run on their own goroutine and must never block engine progress.
type Emitter interface {
	EmitBatch(batchID string, receipts []models.Receipt)
}

type Config struct {
	Logger       *slog.Logger
	Plan         *plan.Plan
	Store        store.Store
	Clock        clockwork.Clock
	FeeRecipient string
	Emitter      Emitter          // optional
	Metrics      *metrics.Metrics // optional
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.FeeRecipient == "" {
		return errors.New("fee recipient is required")
	}
	if cfg.Plan == nil {
		cfg.Plan = plan.Default()
	}
	if err := cfg.Plan.Validate(); err != nil {
		return err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type state struct {
	users    map[string]*models.User
	byID     map[uint64]string
	children map[string][]string // matrix children, placement order
	codes    map[string]string   // referral code -> address
	pools    map[string]*models.Pool
	extIDs   map[string]struct{}
	nextID   uint64
}

type Engine struct {
	mu    sync.RWMutex
	log   *slog.Logger
	plan  *plan.Plan
	store store.Store
	clock clockwork.Clock

	feeRecipient string
	emitter      Emitter
	metrics      *metrics.Metrics

	st state
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		log:          cfg.Logger,
		plan:         cfg.Plan,
		store:        cfg.Store,
		clock:        cfg.Clock,
		feeRecipient: cfg.FeeRecipient,
		emitter:      cfg.Emitter,
		metrics:      cfg.Metrics,
		st: state{
			users:    make(map[string]*models.User),
			byID:     make(map[uint64]string),
			children: make(map[string][]string),
			codes:    make(map[string]string),
			pools:    make(map[string]*models.Pool),
			extIDs:   make(map[string]struct{}),
			nextID:   1,
		},
	}

	snap, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if err := e.restore(snap); err != nil {
		return nil, err
	}

	e.log.Info("ledger engine ready",
		"users", len(e.st.users),
		"next_id", e.st.nextID)
	return e, nil
}

func (e *Engine) restore(snap *store.Snapshot) error {
	for i := range snap.Users {
		u := snap.Users[i]
		copied := u
		e.st.users[u.Address] = &copied
		e.st.byID[u.ID] = u.Address
		if u.ReferralCode != nil {
			e.st.codes[*u.ReferralCode] = u.Address
		}
		if u.ID >= e.st.nextID {
			e.st.nextID = u.ID + 1
		}
	}
	// Users arrive ordered by id, so children lists come out in placement
	// order.
	for i := range snap.Users {
		u := snap.Users[i]
		if u.MatrixParent != "" {
			e.st.children[u.MatrixParent] = append(e.st.children[u.MatrixParent], u.Address)
		}
	}
	for i := range snap.Pools {
		p := snap.Pools[i]
		copied := p
		e.st.pools[p.ID] = &copied
	}
	for _, id := range models.PoolIDs {
		if _, ok := e.st.pools[id]; !ok {
			e.st.pools[id] = &models.Pool{ID: id}
		}
	}
	for _, id := range snap.PaymentExternalIDs {
		e.st.extIDs[id] = struct{}{}
	}
	return nil
}

// txn stages one operation. All reads and writes go through working copies;
// nothing touches engine state until commit succeeds.
type txn struct {
	e        *Engine
	now      time.Time
	batchID  string
	users    map[string]*models.User
	created  []string
	pools    map[string]*models.Pool
	receipts []models.Receipt
	payment  *models.Payment
	placed   *placementRef
	code     *codeClaim
}

type placementRef struct {
	parent string
	child  string
}

type codeClaim struct {
	code    string
	address string
}

func (e *Engine) newTxn() *txn {
	return &txn{
		e:       e,
		now:     e.clock.Now().UTC(),
		batchID: uuid.NewString(),
		users:   make(map[string]*models.User),
		pools:   make(map[string]*models.Pool),
	}
}

// user returns a working copy of the user, or nil if the address is not
// registered.
func (t *txn) user(address string) *models.User {
	if u, ok := t.users[address]; ok {
		return u
	}
	u, ok := t.e.st.users[address]
	if !ok {
		return nil
	}
	c := u.Clone()
	t.users[address] = c
	return c
}

func (t *txn) createUser(u *models.User) {
	t.users[u.Address] = u
	t.created = append(t.created, u.Address)
}

func (t *txn) pool(id string) *models.Pool {
	if p, ok := t.pools[id]; ok {
		return p
	}
	c := t.e.st.pools[id].Clone()
	t.pools[id] = c
	return c
}

func (t *txn) receipt(recipient string, amount int64, reason string, level int) {
	t.receipts = append(t.receipts, models.Receipt{
		BatchID:   t.batchID,
		Recipient: recipient,
		Amount:    amount,
		Reason:    reason,
		Level:     level,
		CreatedAt: t.now,
	})
}

// accruePool adds to a pool accumulator, recording an accounting-only
// receipt against the pool itself.
func (t *txn) accruePool(id string, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	p := t.pool(id)
	p.Balance += amount
	p.UpdatedAt = t.now
	t.receipt("pool:"+id, amount, reason, 0)
}

// drainPool removes from a pool accumulator, recording a negative receipt so
// every batch still nets out exactly.
func (t *txn) drainPool(id string, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	p := t.pool(id)
	p.Balance -= amount
	p.TotalDistributed += amount
	p.UpdatedAt = t.now
	t.receipt("pool:"+id, -amount, reason, 0)
}

func (t *txn) changeSet() *store.ChangeSet {
	cs := &store.ChangeSet{
		Payment:  t.payment,
		Receipts: t.receipts,
	}
	addrs := make([]string, 0, len(t.users))
	for addr := range t.users {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		cs.Users = append(cs.Users, t.users[addr])
	}
	for _, id := range models.PoolIDs {
		if p, ok := t.pools[id]; ok {
			cs.Pools = append(cs.Pools, p)
		}
	}
	return cs
}

func (e *Engine) commit(ctx context.Context, t *txn) error {
	cs := t.changeSet()
	if err := e.store.Apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to persist operation: %w", err)
	}

	for addr, u := range t.users {
		e.st.users[addr] = u
	}
	for _, addr := range t.created {
		u := t.users[addr]
		e.st.byID[u.ID] = addr
		if u.ID >= e.st.nextID {
			e.st.nextID = u.ID + 1
		}
	}
	if t.placed != nil {
		e.st.children[t.placed.parent] = append(e.st.children[t.placed.parent], t.placed.child)
	}
	if t.code != nil {
		e.st.codes[t.code.code] = t.code.address
	}
	for id, p := range t.pools {
		e.st.pools[id] = p
	}
	if t.payment != nil {
		e.st.extIDs[t.payment.ExternalID] = struct{}{}
	}

	if e.metrics != nil {
		e.metrics.CreditsApplied.Add(float64(len(t.receipts)))
	}
	if e.emitter != nil && len(t.receipts) > 0 {
		receipts := make([]models.Receipt, len(t.receipts))
		copy(receipts, t.receipts)
		go e.emitter.EmitBatch(t.batchID, receipts)
	}
	return nil
}

// UserInfo returns a copy of the user record.
func (e *Engine) UserInfo(address string) (*models.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.st.users[normalizeAddress(address)]
	if !ok {
		return nil, ErrNotRegistered
	}
	return u.Clone(), nil
}

// PoolBalances returns copies of every pool accumulator.
func (e *Engine) PoolBalances() []models.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Pool, 0, len(models.PoolIDs))
	for _, id := range models.PoolIDs {
		out = append(out, *e.st.pools[id])
	}
	return out
}

// TotalUsers reports how many users are registered.
func (e *Engine) TotalUsers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.st.users)
}

// usersInIDOrder returns every registered address in registration order.
// Callers must hold the lock.
func (e *Engine) usersInIDOrder() []string {
	out := make([]string, 0, len(e.st.users))
	for id := uint64(1); id < e.st.nextID; id++ {
		if addr, ok := e.st.byID[id]; ok {
			out = append(out, addr)
		}
	}
	return out
}

// SetBlacklisted flags or unflags a user. Blacklisted users cannot purchase,
// withdraw, or receive pool distributions.
func (e *Engine) SetBlacklisted(ctx context.Context, address string, flag bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr := normalizeAddress(address)
	if _, ok := e.st.users[addr]; !ok {
		return ErrNotRegistered
	}

	t := e.newTxn()
	u := t.user(addr)
	u.IsBlacklisted = flag
	u.UpdatedAt = t.now
	if err := e.commit(ctx, t); err != nil {
		return err
	}
	e.log.Info("blacklist flag updated", "address", addr, "blacklisted", flag)
	return nil
}

// SweepActivity deactivates users with no payment or withdrawal inside the
// activity window. Inactive users lose help-pool eligibility until they act
// again.
func (e *Engine) SweepActivity(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().UTC().Add(-e.plan.ActivityWindow)
	t := e.newTxn()
	swept := 0
	for _, addr := range e.usersInIDOrder() {
		u := e.st.users[addr]
		if u.IsActive && u.LastActivityAt.Before(cutoff) {
			c := t.user(addr)
			c.IsActive = false
			c.UpdatedAt = t.now
			swept++
		}
	}
	if swept == 0 {
		return 0, nil
	}
	if err := e.commit(ctx, t); err != nil {
		return 0, err
	}
	e.log.Info("activity sweep complete", "deactivated", swept)
	return swept, nil
}
