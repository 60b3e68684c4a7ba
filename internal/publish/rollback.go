package publish

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/offers-backend/pkg/contentstore"
	"github.com/angelmondragon/offers-backend/pkg/couponledger"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
)

// compensate undoes what att committed remotely. Every action runs even when
// an earlier one fails; the errors are combined.
func (s *service) compensate(ctx context.Context, att *attempt) error {
	ctx = context.WithoutCancel(ctx)
	offer := att.offer
	var errs error

	if att.contentFlipped {
		errs = multierr.Append(errs, s.undo(ctx, att, "content_unpublish", contentstore.Subsystem, func(ctx context.Context) error {
			return s.content.SetEnvironment(ctx, contentstore.SetEnvironmentInput{
				Region:         offer.Region,
				Code:           offer.OfferCode,
				StoreCode:      offer.StoreCode,
				Env:            enums.EnvironmentStaging,
				IdempotencyKey: att.rollbackKey("content_unpublish"),
			})
		}))
	}

	if att.commit != nil {
		commit := *att.commit
		section := att.variant.Section()
		prior := att.priorEntry
		errs = multierr.Append(errs, s.undo(ctx, att, "config_rollback", featureconfig.Subsystem, func(ctx context.Context) error {
			return s.config.Revert(ctx, enums.EnvironmentProduction, commit, att.rollbackKey("config_rollback"), func(doc *featureconfig.Document) error {
				if prior != nil {
					return doc.Upsert(offer.Region, section, *prior)
				}
				doc.Remove(offer.Region, section, offer.OfferCode)
				return nil
			})
		}))
	}

	for _, c := range att.createdCoupons() {
		errs = multierr.Append(errs, s.undo(ctx, att, "coupon_deactivate_production", couponledger.Subsystem, func(ctx context.Context) error {
			return s.ledger.DeactivateCoupon(ctx, couponledger.DeactivateInput{
				OfferCode:      c.offerCode,
				CouponCode:     c.couponCode,
				StoreCode:      offer.StoreCode,
				Env:            enums.EnvironmentProduction,
				UpdatedBy:      att.actor,
				IdempotencyKey: att.rollbackKey("coupon_deactivate_production:" + c.offerCode),
			})
		}))
		errs = multierr.Append(errs, s.undo(ctx, att, "coupon_deactivate_staging", couponledger.Subsystem, func(ctx context.Context) error {
			return s.ledger.DeactivateCoupon(ctx, couponledger.DeactivateInput{
				OfferCode:      c.offerCode,
				CouponCode:     c.offerCode,
				StoreCode:      offer.StoreCode,
				Env:            enums.EnvironmentStaging,
				UpdatedBy:      att.actor,
				IdempotencyKey: att.rollbackKey("coupon_deactivate_staging:" + c.offerCode),
			})
		}))
	}

	if att.contentTouched {
		errs = multierr.Append(errs, s.undo(ctx, att, "content_archive", contentstore.Subsystem, func(ctx context.Context) error {
			return s.content.ArchiveEntry(ctx, offer.Region, offer.OfferCode, att.rollbackKey("content_archive"))
		}))
	}
	return errs
}

func (s *service) undo(ctx context.Context, att *attempt, action, subsystem string, fn func(context.Context) error) error {
	err := s.call(ctx, stepCompensate, s.profiles.Short, fn)
	if err == nil {
		return nil
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"action":     action,
		"subsystem":  subsystem,
		"attempt_id": att.id,
		"error":      err.Error(),
	}), "compensation action failed")
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", subsystem, action))
}

type createdCoupon struct {
	offerCode  string
	couponCode string
}

// createdCoupons lists the production coupons this attempt created, keyed by
// the offer code their staging counterpart lives under.
func (a *attempt) createdCoupons() []createdCoupon {
	var out []createdCoupon
	if a.coupon != nil {
		out = append(out, createdCoupon{offerCode: a.offer.OfferCode, couponCode: a.coupon.Code})
	}
	if a.upgradeCoupon != nil && a.offer.UpgradeOfferCode != nil {
		out = append(out, createdCoupon{offerCode: *a.offer.UpgradeOfferCode, couponCode: a.upgradeCoupon.Code})
	}
	return out
}

func (a *attempt) rollbackKey(action string) string {
	return a.id + ":rollback:" + action
}
