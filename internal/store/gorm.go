package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledgerd/internal/models"
)

// GormStore persists engine state to Postgres through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	db := s.db.WithContext(ctx)

	if err := db.Order("id ASC").Find(&snap.Users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	if err := db.Find(&snap.Pools).Error; err != nil {
		return nil, fmt.Errorf("failed to load pools: %w", err)
	}
	if err := db.Model(&models.Payment{}).Pluck("external_id", &snap.PaymentExternalIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load payment ids: %w", err)
	}
	return snap, nil
}

func (s *GormStore) Apply(ctx context.Context, cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range cs.Users {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(u).Error; err != nil {
				return fmt.Errorf("failed to save user %s: %w", u.Address, err)
			}
		}
		for _, p := range cs.Pools {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error; err != nil {
				return fmt.Errorf("failed to save pool %s: %w", p.ID, err)
			}
		}
		if cs.Payment != nil {
			if err := tx.Create(cs.Payment).Error; err != nil {
				return fmt.Errorf("failed to record payment %s: %w", cs.Payment.ExternalID, err)
			}
		}
		if len(cs.Receipts) > 0 {
			if err := tx.Create(&cs.Receipts).Error; err != nil {
				return fmt.Errorf("failed to record receipts: %w", err)
			}
		}
		return nil
	})
}
