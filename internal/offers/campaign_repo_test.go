package offers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

func TestListCampaignOffersOrdersAndFilters(t *testing.T) {
	conn := setupOffersTestDB(t)
	repo := NewCampaignRepository(conn)
	ctx := context.Background()

	campaign := models.Campaign{ID: uuid.New(), Name: "Spring", StoreCode: "google"}
	require.NoError(t, conn.Create(&campaign).Error)
	links := []models.CampaignOffer{
		{CampaignID: campaign.ID, OfferCode: "B", StoreCode: "google", OfferTypeID: enums.OfferTypeRetention, Position: 2},
		{CampaignID: campaign.ID, OfferCode: "A", StoreCode: "google", OfferTypeID: enums.OfferTypeAcquisition, Position: 1},
		{CampaignID: campaign.ID, OfferCode: "X", StoreCode: "google", OfferTypeID: enums.OfferTypeExtension, Position: 0},
	}
	require.NoError(t, conn.Create(&links).Error)

	found, err := repo.FindCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring", found.Name)

	got, err := repo.ListCampaignOffers(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].OfferCode)
	assert.Equal(t, "B", got[1].OfferCode)
}

func TestFindCampaignNotFound(t *testing.T) {
	conn := setupOffersTestDB(t)
	_, err := NewCampaignRepository(conn).FindCampaign(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}
