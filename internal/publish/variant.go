package publish

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/offers-backend/pkg/couponledger"
	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
)

// variant holds what differs between offer types. The saga itself is shared.
type variant interface {
	Type() enums.OfferType
	Section() featureconfig.Section
	Validate(offer *models.Offer) error
	CouponPayload(offer *models.Offer, draft couponledger.DraftPayload, upgrade bool) couponledger.DraftPayload
	ConfigEntry(offer *models.Offer, coupon, upgradeCoupon *couponledger.Coupon, now time.Time) featureconfig.Entry
}

func variantFor(t enums.OfferType) (variant, error) {
	switch t {
	case enums.OfferTypeAcquisition:
		return acquisitionVariant{}, nil
	case enums.OfferTypeRetention:
		return retentionVariant{}, nil
	case enums.OfferTypeExtension:
		return extensionVariant{}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported offer type %d", int(t)))
}

// baseVariant carries the mapping shared by every offer type.
type baseVariant struct{}

func (baseVariant) Validate(offer *models.Offer) error {
	if strings.TrimSpace(offer.Region) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("offer %s has no region", offer.OfferCode))
	}
	if strings.TrimSpace(offer.PlanCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("offer %s has no plan code", offer.OfferCode))
	}
	return nil
}

func (baseVariant) couponPayload(t enums.OfferType, offer *models.Offer, draft couponledger.DraftPayload, upgrade bool) couponledger.DraftPayload {
	out := draft
	out.Code = offer.OfferCode
	if upgrade && offer.UpgradeOfferCode != nil {
		out.Code = *offer.UpgradeOfferCode
	}
	if out.DurationMonths == 0 {
		out.DurationMonths = offer.DurationMonths
	}
	if out.DiscountType == "" {
		out.DiscountType = offer.DiscountType
		out.DiscountAmount = offer.DiscountAmount
	}
	meta := make(map[string]string, len(draft.Metadata)+3)
	for k, v := range draft.Metadata {
		meta[k] = v
	}
	meta["offerType"] = t.String()
	meta["region"] = offer.Region
	if upgrade {
		meta["upgradeOf"] = offer.OfferCode
	}
	out.Metadata = meta
	return out
}

func (baseVariant) configEntry(offer *models.Offer, coupon, upgradeCoupon *couponledger.Coupon, now time.Time) featureconfig.Entry {
	entry := featureconfig.Entry{
		OfferCode:        offer.OfferCode,
		PlanCode:         offer.PlanCode,
		EligibleSegments: splitSegments(offer.EligibleSegments),
		DurationMonths:   offer.DurationMonths,
		PublishedAt:      now.UTC(),
	}
	if coupon != nil {
		entry.CouponCode = coupon.Code
	}
	if upgradeCoupon != nil {
		entry.UpgradeCouponCode = upgradeCoupon.Code
	}
	return entry
}

type acquisitionVariant struct{ baseVariant }

func (acquisitionVariant) Type() enums.OfferType { return enums.OfferTypeAcquisition }

func (acquisitionVariant) Section() featureconfig.Section { return featureconfig.SectionOffers }

func (v acquisitionVariant) CouponPayload(offer *models.Offer, draft couponledger.DraftPayload, upgrade bool) couponledger.DraftPayload {
	return v.couponPayload(v.Type(), offer, draft, upgrade)
}

func (v acquisitionVariant) ConfigEntry(offer *models.Offer, coupon, upgradeCoupon *couponledger.Coupon, now time.Time) featureconfig.Entry {
	return v.configEntry(offer, coupon, upgradeCoupon, now)
}

// retentionVariant targets existing subscribers; the ledger needs to know the
// coupon must not be offered at signup.
type retentionVariant struct{ baseVariant }

func (retentionVariant) Type() enums.OfferType { return enums.OfferTypeRetention }

func (retentionVariant) Section() featureconfig.Section { return featureconfig.SectionRetentionOffers }

func (v retentionVariant) CouponPayload(offer *models.Offer, draft couponledger.DraftPayload, upgrade bool) couponledger.DraftPayload {
	out := v.couponPayload(v.Type(), offer, draft, upgrade)
	out.Metadata["existingSubscribersOnly"] = strconv.FormatBool(true)
	return out
}

func (v retentionVariant) ConfigEntry(offer *models.Offer, coupon, upgradeCoupon *couponledger.Coupon, now time.Time) featureconfig.Entry {
	return v.configEntry(offer, coupon, upgradeCoupon, now)
}

// extensionVariant extends a running subscription by whole months and never
// carries an upgrade path.
type extensionVariant struct{ baseVariant }

func (extensionVariant) Type() enums.OfferType { return enums.OfferTypeExtension }

func (extensionVariant) Section() featureconfig.Section { return featureconfig.SectionExtensionOffers }

func (v extensionVariant) Validate(offer *models.Offer) error {
	if err := v.baseVariant.Validate(offer); err != nil {
		return err
	}
	if offer.HasUpgradePath() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("extension offer %s cannot declare an upgrade path", offer.OfferCode))
	}
	if offer.DurationMonths <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("extension offer %s needs a positive duration", offer.OfferCode))
	}
	return nil
}

func (v extensionVariant) CouponPayload(offer *models.Offer, draft couponledger.DraftPayload, _ bool) couponledger.DraftPayload {
	out := v.couponPayload(v.Type(), offer, draft, false)
	out.DurationMonths = offer.DurationMonths
	return out
}

func (v extensionVariant) ConfigEntry(offer *models.Offer, coupon, _ *couponledger.Coupon, now time.Time) featureconfig.Entry {
	return v.configEntry(offer, coupon, nil, now)
}

func splitSegments(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
