package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/offers-backend/pkg/enums"
)

// Campaign groups offers that are published together.
type Campaign struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	StoreCode string    `gorm:"column:store_code;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignOffer links an offer code to a campaign.
type CampaignOffer struct {
	CampaignID  uuid.UUID       `gorm:"column:campaign_id;type:uuid;primaryKey"`
	OfferCode   string          `gorm:"column:offer_code;primaryKey"`
	StoreCode   string          `gorm:"column:store_code;not null"`
	OfferTypeID enums.OfferType `gorm:"column:offer_type_id;not null"`
	Position    int             `gorm:"column:position;not null;default:0"`
}

func (CampaignOffer) TableName() string { return "campaign_offers" }
