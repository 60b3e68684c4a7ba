package offers

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

func setupOffersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	offers := `
CREATE TABLE IF NOT EXISTS offers (
  id TEXT PRIMARY KEY,
  offer_code TEXT NOT NULL,
  store_code TEXT NOT NULL,
  offer_type_id INTEGER NOT NULL,
  status_id TEXT NOT NULL DEFAULT 'DRAFT',
  region TEXT NOT NULL,
  plan_code TEXT NOT NULL,
  upgrade_plan_code TEXT,
  upgrade_offer_code TEXT,
  discount_type TEXT NOT NULL,
  discount_amount NUMERIC NOT NULL DEFAULT 0,
  duration_months INTEGER NOT NULL DEFAULT 1,
  eligible_segments TEXT,
  coupon_id TEXT,
  upgrade_coupon_id TEXT,
  gl_rollback_version INTEGER,
  draft_data TEXT NOT NULL DEFAULT '{}',
  updated_by TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (offer_code, store_code)
);`
	history := `
CREATE TABLE IF NOT EXISTS offer_history (
  id TEXT PRIMARY KEY,
  offer_id TEXT NOT NULL,
  offer_code TEXT NOT NULL,
  store_code TEXT NOT NULL,
  offer_type_id INTEGER NOT NULL,
  status_id TEXT NOT NULL,
  coupon_id TEXT,
  upgrade_coupon_id TEXT,
  updated_by TEXT,
  offer_created_at DATETIME,
  offer_updated_at DATETIME,
  created_at DATETIME
);`
	campaigns := `
CREATE TABLE IF NOT EXISTS campaigns (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  store_code TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	campaignOffers := `
CREATE TABLE IF NOT EXISTS campaign_offers (
  campaign_id TEXT NOT NULL,
  offer_code TEXT NOT NULL,
  store_code TEXT NOT NULL,
  offer_type_id INTEGER NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (campaign_id, offer_code)
);`
	for _, stmt := range []string{offers, history, campaigns, campaignOffers} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOffer(t *testing.T, db *gorm.DB, code string, status enums.OfferStatus) *models.Offer {
	t.Helper()
	offer := &models.Offer{
		ID:               uuid.New(),
		OfferCode:        code,
		StoreCode:        "google",
		OfferTypeID:      enums.OfferTypeAcquisition,
		StatusID:         status,
		Region:           "US",
		PlanCode:         "premium-monthly",
		DiscountType:     enums.DiscountTypePercent,
		DiscountAmount:   decimal.NewFromInt(25),
		DurationMonths:   3,
		EligibleSegments: "new,lapsed",
		DraftData:        types.Diagnostics{"notes": "seeded"},
	}
	require.NoError(t, db.Create(offer).Error)
	return offer
}
