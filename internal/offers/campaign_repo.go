package offers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// CampaignRepository reads campaigns and their linked offers.
type CampaignRepository interface {
	FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaignOffers(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignOffer, error)
}

type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository builds a campaign repository bound to the provided DB.
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("campaign %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load campaign")
	}
	return &campaign, nil
}

// ListCampaignOffers returns the campaignable links of a campaign in
// position order. Links to variants that cannot join a campaign are skipped.
func (r *campaignRepository) ListCampaignOffers(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignOffer, error) {
	var links []models.CampaignOffer
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("position ASC, offer_code ASC").
		Find(&links).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list campaign offers")
	}
	out := links[:0]
	for _, link := range links {
		if link.OfferTypeID.Campaignable() {
			out = append(out, link)
		}
	}
	return out, nil
}
