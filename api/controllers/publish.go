package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/offers-backend/api/responses"
	"github.com/angelmondragon/offers-backend/api/validators"
	"github.com/angelmondragon/offers-backend/internal/publish"
	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

// PublishedOffer is the response shape of a published offer.
type PublishedOffer struct {
	OfferCode         string    `json:"offerCode"`
	StoreCode         string    `json:"storeCode"`
	OfferTypeID       int       `json:"offerTypeId"`
	Status            string    `json:"status"`
	Region            string    `json:"region"`
	CouponID          *string   `json:"couponId,omitempty"`
	UpgradeCouponID   *string   `json:"upgradeCouponId,omitempty"`
	GLRollbackVersion *int64    `json:"glRollbackVersion,omitempty"`
	UpdatedBy         string    `json:"updatedBy"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toPublishedOffer(o *models.Offer) PublishedOffer {
	return PublishedOffer{
		OfferCode:         o.OfferCode,
		StoreCode:         o.StoreCode,
		OfferTypeID:       int(o.OfferTypeID),
		Status:            o.StatusID.String(),
		Region:            o.Region,
		CouponID:          o.CouponID,
		UpgradeCouponID:   o.UpgradeCouponID,
		GLRollbackVersion: o.GLRollbackVersion,
		UpdatedBy:         o.UpdatedBy,
		UpdatedAt:         o.UpdatedAt,
	}
}

// PublishOffer handles GET /offers/{offerId}/publish.
func PublishOffer(svc publish.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offerCode := strings.TrimSpace(chi.URLParam(r, "offerId"))
		if err := validators.ValidateVar("offerId", offerCode, "required,max=64,code"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var q validators.PublishOfferQuery
		if err := validators.BindQuery(r, &q); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := publish.PublishInput{OfferCode: offerCode, StoreCode: q.Store, UpdatedBy: q.UpdatedBy}
		if q.OfferTypeID != "" {
			offerType, err := enums.ParseOfferType(q.OfferTypeID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offerTypeId"))
				return
			}
			in.OfferType = offerType
		}

		offer, err := svc.PublishOffer(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPublishedOffer(offer))
	}
}

// PublishCampaign handles GET /campaign/{campaignId}/publish.
func PublishCampaign(svc publish.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawID := strings.TrimSpace(chi.URLParam(r, "campaignId"))
		if err := validators.ValidateVar("campaignId", rawID, "required,uuid"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var q validators.PublishCampaignQuery
		if err := validators.BindQuery(r, &q); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offers, err := svc.PublishCampaign(r.Context(), publish.CampaignInput{
			CampaignID: uuid.MustParse(rawID),
			UpdatedBy:  q.UpdatedBy,
		})
		if err != nil {
			var campaignErr *publish.CampaignError
			if errors.As(err, &campaignErr) && len(campaignErr.Items) > 0 {
				code := pkgerrors.CodeOf(campaignErr.Items[0].Err)
				if code == pkgerrors.CodeInternal {
					code = pkgerrors.CodeDependency
				}
				// Empty message: the item lines are the operator message.
				err = pkgerrors.Wrap(code, campaignErr, "")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]PublishedOffer, 0, len(offers))
		for _, o := range offers {
			out = append(out, toPublishedOffer(o))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}
