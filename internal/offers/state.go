package offers

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// PublishableStatuses are the only states a publish may start from.
var PublishableStatuses = []enums.OfferStatus{
	enums.OfferStatusStagingPass,
	enums.OfferStatusProdErrPub,
}

var transitions = map[enums.OfferStatus][]enums.OfferStatus{
	enums.OfferStatusDraft:       {enums.OfferStatusStaging},
	enums.OfferStatusStaging:     {enums.OfferStatusStagingFail, enums.OfferStatusStagingPass},
	enums.OfferStatusStagingFail: {enums.OfferStatusDraft, enums.OfferStatusStaging},
	enums.OfferStatusStagingPass: {enums.OfferStatusApproved, enums.OfferStatusProdPending, enums.OfferStatusStaging},
	enums.OfferStatusApproved:    {enums.OfferStatusStagingPass, enums.OfferStatusStaging},
	enums.OfferStatusProdPending: {
		enums.OfferStatusProd,
		enums.OfferStatusProdFail,
		enums.OfferStatusProdErrPub,
		enums.OfferStatusProdRollback,
		enums.OfferStatusStagingPass,
	},
	enums.OfferStatusProdErrPub: {enums.OfferStatusProdPending},
	enums.OfferStatusProdFail:   {enums.OfferStatusDraft},
	// PROD and PROD_RB_FAIL only move by operator action outside this service.
	enums.OfferStatusProd:         {},
	enums.OfferStatusProdRollback: {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.OfferStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves offer to status or returns a STATE_CONFLICT error.
func Transition(offer *models.Offer, to enums.OfferStatus) error {
	if offer == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "offer is required")
	}
	if !CanTransition(offer.StatusID, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("offer %s cannot move from %s to %s", offer.OfferCode, offer.StatusID, to)).
			WithDetails(map[string]any{"from": offer.StatusID, "to": to})
	}
	offer.StatusID = to
	return nil
}

// IsPublishable reports whether status allows starting a publish.
func IsPublishable(status enums.OfferStatus) bool {
	for _, s := range PublishableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// EnsurePublishable rejects offers outside the publishable states with a
// precondition error naming the current state.
func EnsurePublishable(offer *models.Offer) error {
	if offer == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	if IsPublishable(offer.StatusID) {
		return nil
	}
	allowed := make([]string, 0, len(PublishableStatuses))
	for _, s := range PublishableStatuses {
		allowed = append(allowed, s.String())
	}
	return pkgerrors.New(pkgerrors.CodePrecondition,
		fmt.Sprintf("offer %s is in status %s; publish requires %s", offer.OfferCode, offer.StatusID, strings.Join(allowed, " or "))).
		WithDetails(map[string]any{"status": offer.StatusID})
}
