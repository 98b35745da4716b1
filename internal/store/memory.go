package store

import (
	"context"
	"sort"
	"sync"

	"ledgerd/internal/models"
)

// MemoryStore keeps everything in process. Used by tests and simulations
// where no database is wired.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	pools    map[string]models.Pool
	payments []models.Payment
	receipts []models.Receipt

	// FailNextApply makes the next Apply return an error, for testing
	// all-or-nothing behavior.
	FailNextApply error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		pools: make(map[string]models.Pool),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	// The snapshot contract promises registration order; map iteration
	// would scramble matrix child lists on reload.
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	for _, p := range s.pools {
		snap.Pools = append(snap.Pools, p)
	}
	sort.Slice(snap.Pools, func(i, j int) bool { return snap.Pools[i].ID < snap.Pools[j].ID })
	for _, p := range s.payments {
		snap.PaymentExternalIDs = append(snap.PaymentExternalIDs, p.ExternalID)
	}
	return snap, nil
}

func (s *MemoryStore) Apply(ctx context.Context, cs *ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextApply != nil {
		err := s.FailNextApply
		s.FailNextApply = nil
		return err
	}

	for _, u := range cs.Users {
		s.users[u.Address] = *u
	}
	for _, p := range cs.Pools {
		s.pools[p.ID] = *p
	}
	if cs.Payment != nil {
		s.payments = append(s.payments, *cs.Payment)
	}
	s.receipts = append(s.receipts, cs.Receipts...)
	return nil
}

// Receipts returns a copy of everything recorded so far.
func (s *MemoryStore) Receipts() []models.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}
