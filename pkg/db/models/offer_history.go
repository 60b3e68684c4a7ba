package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/offers-backend/pkg/enums"
)

// OfferHistory is an append-only snapshot written once per successful publish.
type OfferHistory struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OfferID         uuid.UUID         `gorm:"column:offer_id;type:uuid;not null"`
	OfferCode       string            `gorm:"column:offer_code;not null"`
	StoreCode       string            `gorm:"column:store_code;not null"`
	OfferTypeID     enums.OfferType   `gorm:"column:offer_type_id;not null"`
	StatusID        enums.OfferStatus `gorm:"column:status_id;not null"`
	CouponID        *string           `gorm:"column:coupon_id"`
	UpgradeCouponID *string           `gorm:"column:upgrade_coupon_id"`
	UpdatedBy       string            `gorm:"column:updated_by"`
	OfferCreatedAt  time.Time         `gorm:"column:offer_created_at"`
	OfferUpdatedAt  time.Time         `gorm:"column:offer_updated_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OfferHistory) TableName() string { return "offer_history" }
