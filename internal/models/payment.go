package models

import (
	"time"
)

const (
	PaymentKindRegister = "register"
	PaymentKindUpgrade  = "upgrade"
)

type Payment struct {
	ID           uint64 `gorm:"primaryKey"`
	ExternalID   string `gorm:"size:64;uniqueIndex;not null"`
	Payer        string `gorm:"size:64;index;not null"`
	Amount       int64  `gorm:"not null"`
	PackageLevel int    `gorm:"not null"`
	Kind         string `gorm:"size:16;not null"`
	CreatedAt    time.Time
}
