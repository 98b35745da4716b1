// Package store persists the engine's state. The engine keeps the registry
// in memory and writes every committed operation through a Store; at boot it
// reloads the full snapshot.
package store

import (
	"context"

	"ledgerd/internal/models"
)

// ChangeSet is the complete set of rows touched by one engine operation.
// Apply must write it atomically: either every row lands or none do.
type ChangeSet struct {
	Users    []*models.User
	Pools    []*models.Pool
	Payment  *models.Payment
	Receipts []models.Receipt
}

func (c *ChangeSet) Empty() bool {
	return len(c.Users) == 0 && len(c.Pools) == 0 && c.Payment == nil && len(c.Receipts) == 0
}

// Snapshot is the state loaded at boot. Users are ordered by registration id.
type Snapshot struct {
	Users              []models.User
	Pools              []models.Pool
	PaymentExternalIDs []string
}

type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, cs *ChangeSet) error
}
