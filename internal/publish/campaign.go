package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/pubsub"
)

// CampaignInput identifies the campaign to publish.
type CampaignInput struct {
	CampaignID uuid.UUID
	UpdatedBy  string
}

// ItemError is the failure of one offer inside a campaign.
type ItemError struct {
	Region    string
	OfferCode string
	Err       error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("[%s/%s] %s", e.Region, e.OfferCode, pkgerrors.Describe(e.Err))
}

func (e ItemError) Unwrap() error { return e.Err }

// CampaignError lists every item that did not reach PROD, in campaign order.
type CampaignError struct {
	CampaignID uuid.UUID
	Items      []ItemError
}

func (e *CampaignError) Error() string {
	lines := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		lines = append(lines, item.Error())
	}
	return strings.Join(lines, "\n")
}

func (e *CampaignError) Unwrap() []error {
	out := make([]error, 0, len(e.Items))
	for _, item := range e.Items {
		out = append(out, item)
	}
	return out
}

// LogFields feeds the request error log.
func (e *CampaignError) LogFields() map[string]any {
	return map[string]any{"campaign_id": e.CampaignID.String(), "failed_items": len(e.Items)}
}

// Status is the HTTP status of the first failed item.
func (e *CampaignError) Status() int {
	if len(e.Items) == 0 {
		return pkgerrors.StatusOf(nil)
	}
	return pkgerrors.StatusOf(e.Items[0].Err)
}

type campaignItem struct {
	link  models.CampaignOffer
	offer *models.Offer
	att   *attempt
	err   error
}

func (i *campaignItem) region() string {
	if i.offer != nil && i.offer.Region != "" {
		return i.offer.Region
	}
	return "-"
}

func (i *campaignItem) published() bool {
	return i.err == nil && i.att != nil && i.att.offer.StatusID == enums.OfferStatusProd
}

// PublishCampaign publishes every campaign offer phase by phase. Items fail
// independently: a failed item is compensated on its own and never causes a
// published sibling to be rolled back.
func (s *service) PublishCampaign(ctx context.Context, in CampaignInput) ([]*models.Offer, error) {
	if in.CampaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}
	ctx = s.logg.WithCampaignID(ctx, in.CampaignID.String())

	campaign, err := s.campaigns.FindCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	links, err := s.campaigns.ListCampaignOffers(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, fmt.Sprintf("campaign %s has no publishable offers", campaign.ID))
	}

	// Claims happen inside the prepare phase; from there every item runs to
	// an outcome regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	items := make([]*campaignItem, len(links))
	for i, link := range links {
		items[i] = &campaignItem{link: link}
	}

	for _, phase := range []Phase{PhasePrepare, PhaseConfigure, PhaseRelease} {
		s.campaignPhase(ctx, items, phase, in.UpdatedBy)
	}

	var (
		offers []*models.Offer
		failed []ItemError
	)
	for _, item := range items {
		if item.published() {
			offers = append(offers, item.att.offer)
			continue
		}
		if item.err != nil {
			failed = append(failed, ItemError{Region: item.region(), OfferCode: item.link.OfferCode, Err: item.err})
		}
	}

	if len(offers) > 0 {
		if err := s.call(ctx, StepContentCacheInvalidate, s.profiles.Short, s.cache.FlushAll); err != nil {
			s.logg.Error(ctx, "campaign content cache flush failed", err)
			failed = append(failed, ItemError{
				Region:    "*",
				OfferCode: campaign.ID.String(),
				Err:       pkgerrors.Wrap(pkgerrors.CodeDependency, err, pubsub.Subsystem+" flush failed"),
			})
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"published": len(offers),
		"failed":    len(failed),
	}), "campaign publish finished")

	if len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, f := range failed {
			errs = append(errs, f)
		}
		s.logg.Warn(s.logg.WithField(ctx, "errors", multierr.Combine(errs...).Error()), "campaign publish had failures")
		return offers, &CampaignError{CampaignID: campaign.ID, Items: failed}
	}
	return offers, nil
}

// campaignPhase runs phase for every item still in flight, bounded by the
// configured concurrency. Goroutines never return errors so one failure does
// not cancel its siblings.
func (s *service) campaignPhase(ctx context.Context, items []*campaignItem, phase Phase, actor string) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, item := range items {
		if item.err != nil {
			continue
		}
		if phase != PhasePrepare && item.att == nil {
			continue
		}
		g.Go(func() error {
			if phase == PhasePrepare {
				att, err := s.beginCampaignItem(ctx, item, actor)
				if err != nil {
					item.err = err
					return nil
				}
				item.att = att
			}
			item.err = s.runPhase(ctx, item.att, phase)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *service) beginCampaignItem(ctx context.Context, item *campaignItem, actor string) (*attempt, error) {
	ctx = s.logg.WithOfferCode(ctx, item.link.OfferCode)
	offer, err := s.offers.FindByCode(ctx, item.link.OfferCode, item.link.StoreCode)
	if err != nil {
		return nil, err
	}
	item.offer = offer
	if !offer.OfferTypeID.Campaignable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s offers cannot be published in a campaign", offer.OfferTypeID))
	}
	att, err := s.begin(ctx, offer, actor)
	if err != nil {
		return nil, err
	}
	att.deferCacheFlush = true
	return att, nil
}
