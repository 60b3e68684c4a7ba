package offers

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Tracker records publish lifecycle changes of an offer. Every write is
// conditional on the status the caller last observed, so two attempts on
// the same offer cannot both proceed.
type Tracker struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

func NewTracker(repo Repository, tx txRunner) *Tracker {
	return &Tracker{repo: repo, tx: tx, now: time.Now}
}

// Claim moves a publishable offer to PROD_PEND and returns the status it
// had before, which a pre-mutation failure restores.
func (t *Tracker) Claim(ctx context.Context, offer *models.Offer, actor string) (enums.OfferStatus, error) {
	if err := EnsurePublishable(offer); err != nil {
		return "", err
	}
	previous := offer.StatusID
	claimed := *offer
	if err := Transition(&claimed, enums.OfferStatusProdPending); err != nil {
		return "", err
	}
	ok, err := t.repo.CompareAndSetStatus(ctx, offer.ID, previous, map[string]any{
		"status_id":  enums.OfferStatusProdPending,
		"updated_by": actor,
		"updated_at": t.now().UTC(),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim offer for publish")
	}
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodePrecondition,
			fmt.Sprintf("offer %s is no longer in status %s; another publish may be running", offer.OfferCode, previous))
	}
	offer.StatusID = enums.OfferStatusProdPending
	offer.UpdatedBy = actor
	return previous, nil
}

// MarkPublished persists PROD with the coupon ids and writes one history row
// in a single transaction.
func (t *Tracker) MarkPublished(ctx context.Context, offer *models.Offer) error {
	published := *offer
	if err := Transition(&published, enums.OfferStatusProd); err != nil {
		return err
	}
	now := t.now().UTC()
	updates := map[string]any{
		"status_id":         enums.OfferStatusProd,
		"coupon_id":         offer.CouponID,
		"upgrade_coupon_id": offer.UpgradeCouponID,
		"updated_by":        offer.UpdatedBy,
		"updated_at":        now,
	}
	if offer.GLRollbackVersion != nil {
		updates["gl_rollback_version"] = *offer.GLRollbackVersion
	}

	err := t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		ok, err := repo.CompareAndSetStatus(ctx, offer.ID, enums.OfferStatusProdPending, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("offer %s left %s during publish", offer.OfferCode, enums.OfferStatusProdPending))
		}
		return repo.CreateHistory(ctx, &models.OfferHistory{
			OfferID:         offer.ID,
			OfferCode:       offer.OfferCode,
			StoreCode:       offer.StoreCode,
			OfferTypeID:     offer.OfferTypeID,
			StatusID:        enums.OfferStatusProd,
			CouponID:        offer.CouponID,
			UpgradeCouponID: offer.UpgradeCouponID,
			UpdatedBy:       offer.UpdatedBy,
			OfferCreatedAt:  offer.CreatedAt,
			OfferUpdatedAt:  now,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist published offer")
	}
	offer.StatusID = enums.OfferStatusProd
	offer.UpdatedAt = now
	return nil
}

// MarkFailed moves a claimed offer to a failure (or restored) status and
// appends note to its diagnostics.
func (t *Tracker) MarkFailed(ctx context.Context, offer *models.Offer, to enums.OfferStatus, note types.PublishError) error {
	failed := *offer
	if err := Transition(&failed, to); err != nil {
		return err
	}
	now := t.now().UTC()
	if note.At.IsZero() {
		note.At = now
	}
	draft := offer.DraftData.AppendPublishError(note)
	updates := map[string]any{
		"status_id":  to,
		"draft_data": draft,
		"updated_at": now,
	}
	if offer.GLRollbackVersion != nil {
		updates["gl_rollback_version"] = *offer.GLRollbackVersion
	}
	ok, err := t.repo.CompareAndSetStatus(ctx, offer.ID, enums.OfferStatusProdPending, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist publish failure")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("offer %s left %s during publish", offer.OfferCode, enums.OfferStatusProdPending))
	}
	offer.StatusID = to
	offer.DraftData = draft
	offer.UpdatedAt = now
	return nil
}
