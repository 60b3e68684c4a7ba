package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

// Offer is a publishable promotional coupon definition tied to a plan.
type Offer struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OfferCode         string             `gorm:"column:offer_code;not null;uniqueIndex:idx_offers_code_store"`
	StoreCode         string             `gorm:"column:store_code;not null;uniqueIndex:idx_offers_code_store"`
	OfferTypeID       enums.OfferType    `gorm:"column:offer_type_id;not null"`
	StatusID          enums.OfferStatus  `gorm:"column:status_id;not null;default:'DRAFT'"`
	Region            string             `gorm:"column:region;not null"`
	PlanCode          string             `gorm:"column:plan_code;not null"`
	UpgradePlanCode   *string            `gorm:"column:upgrade_plan_code"`
	UpgradeOfferCode  *string            `gorm:"column:upgrade_offer_code"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountAmount    decimal.Decimal    `gorm:"column:discount_amount;type:numeric(10,2);not null"`
	DurationMonths    int                `gorm:"column:duration_months;not null"`
	EligibleSegments  string             `gorm:"column:eligible_segments"`
	CouponID          *string            `gorm:"column:coupon_id"`
	UpgradeCouponID   *string            `gorm:"column:upgrade_coupon_id"`
	GLRollbackVersion *int64             `gorm:"column:gl_rollback_version"`
	DraftData         types.Diagnostics  `gorm:"column:draft_data;type:jsonb"`
	UpdatedBy         string             `gorm:"column:updated_by"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Offer) TableName() string { return "offers" }

// HasUpgradePath reports whether a second, upgrade coupon must be created.
func (o *Offer) HasUpgradePath() bool {
	return o.UpgradePlanCode != nil && *o.UpgradePlanCode != "" &&
		o.UpgradeOfferCode != nil && *o.UpgradeOfferCode != ""
}
