package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/offers-backend/internal/configstore"
	"github.com/angelmondragon/offers-backend/internal/retry"
	"github.com/angelmondragon/offers-backend/pkg/contentstore"
	"github.com/angelmondragon/offers-backend/pkg/couponledger"
	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/edgegateway"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/metrics"
	"github.com/angelmondragon/offers-backend/pkg/pubsub"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

const defaultConcurrency = 4

type offerFinder interface {
	FindByCode(ctx context.Context, offerCode, storeCode string) (*models.Offer, error)
}

type campaignFinder interface {
	FindCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaignOffers(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignOffer, error)
}

type publishTracker interface {
	Claim(ctx context.Context, offer *models.Offer, actor string) (enums.OfferStatus, error)
	MarkPublished(ctx context.Context, offer *models.Offer) error
	MarkFailed(ctx context.Context, offer *models.Offer, to enums.OfferStatus, note types.PublishError) error
}

type couponLedger interface {
	FetchDraftPayload(ctx context.Context, code, store string, env enums.Environment) (*couponledger.DraftPayload, error)
	CreateCoupon(ctx context.Context, in couponledger.CreateCouponInput) (*couponledger.Coupon, error)
	DeactivateCoupon(ctx context.Context, in couponledger.DeactivateInput) error
}

type contentStore interface {
	FindEntry(ctx context.Context, region, code string) (*contentstore.Entry, error)
	SetEnvironment(ctx context.Context, in contentstore.SetEnvironmentInput) error
	ArchiveEntry(ctx context.Context, region, code, idempotencyKey string) error
}

type configStore interface {
	Apply(ctx context.Context, env enums.Environment, idempotencyKey string, mutate func(*featureconfig.Document) error) (configstore.Commit, error)
	Revert(ctx context.Context, env enums.Environment, commit configstore.Commit, idempotencyKey string, undo func(*featureconfig.Document) error) error
}

type edgeGateway interface {
	InvalidateCache(ctx context.Context, in edgegateway.InvalidateInput) error
	ValidateLive(ctx context.Context, region, code string, env enums.Environment, wantCoupon string) error
}

type cacheNotifier interface {
	InvalidateContent(ctx context.Context, region, offerCode string) error
	FlushAll(ctx context.Context) error
}

type retrier interface {
	Do(ctx context.Context, policy retry.Policy, op string, fn func(context.Context) error) error
}

// Service publishes staged offers, alone or as a campaign, to production.
type Service interface {
	PublishOffer(ctx context.Context, in PublishInput) (*models.Offer, error)
	PublishCampaign(ctx context.Context, in CampaignInput) ([]*models.Offer, error)
}

// PublishInput identifies the offer to publish.
type PublishInput struct {
	OfferCode string
	StoreCode string
	// OfferType, when set, must match the stored offer.
	OfferType enums.OfferType
	UpdatedBy string
}

type ServiceParams struct {
	Offers    offerFinder
	Campaigns campaignFinder
	Tracker   publishTracker
	Ledger    couponLedger
	Content   contentStore
	Config    configStore
	Edge      edgeGateway
	Cache     cacheNotifier
	Retry     retrier
	Profiles  retry.Profiles
	Metrics   *metrics.PublishMetrics
	Logger    *logger.Logger

	Concurrency  int
	DefaultActor string
}

type service struct {
	offers    offerFinder
	campaigns campaignFinder
	tracker   publishTracker
	ledger    couponLedger
	content   contentStore
	config    configStore
	edge      edgeGateway
	cache     cacheNotifier
	retry     retrier
	profiles  retry.Profiles
	metrics   *metrics.PublishMetrics
	logg      *logger.Logger

	concurrency  int
	defaultActor string
	now          func() time.Time
	newID        func() string
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Offers == nil:
		return nil, fmt.Errorf("offer repository required")
	case params.Campaigns == nil:
		return nil, fmt.Errorf("campaign repository required")
	case params.Tracker == nil:
		return nil, fmt.Errorf("publish tracker required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("coupon ledger client required")
	case params.Content == nil:
		return nil, fmt.Errorf("content store client required")
	case params.Config == nil:
		return nil, fmt.Errorf("config store required")
	case params.Edge == nil:
		return nil, fmt.Errorf("edge gateway client required")
	case params.Cache == nil:
		return nil, fmt.Errorf("content cache notifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	runner := params.Retry
	if runner == nil {
		runner = retry.NewRunner(params.Logger)
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &service{
		offers:       params.Offers,
		campaigns:    params.Campaigns,
		tracker:      params.Tracker,
		ledger:       params.Ledger,
		content:      params.Content,
		config:       params.Config,
		edge:         params.Edge,
		cache:        params.Cache,
		retry:        runner,
		profiles:     params.Profiles,
		metrics:      params.Metrics,
		logg:         params.Logger,
		concurrency:  concurrency,
		defaultActor: params.DefaultActor,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

// attempt is the in-memory record of how far one publish got. The
// compensator reads it to decide what to undo.
type attempt struct {
	id       string
	offer    *models.Offer
	variant  variant
	previous enums.OfferStatus
	actor    string

	draft        *couponledger.DraftPayload
	upgradeDraft *couponledger.DraftPayload

	coupon        *couponledger.Coupon
	upgradeCoupon *couponledger.Coupon

	commit     *configstore.Commit
	priorEntry *featureconfig.Entry

	// contentTouched is set once the configuration is committed: from then
	// on a failure archives the Content Store entry.
	contentTouched bool
	contentFlipped bool

	// deferCacheFlush skips step 8; the campaign flushes once at the end.
	deferCacheFlush bool
	done            bool
}

func (a *attempt) key(step Step) string { return a.id + ":" + string(step) }

func (a *attempt) fail(kind Kind, step Step, subsystem string, err error) *Failure {
	return &Failure{
		Kind:      kind,
		Step:      step,
		Subsystem: subsystem,
		Region:    a.offer.Region,
		OfferCode: a.offer.OfferCode,
		Err:       err,
	}
}

func (in PublishInput) validate() error {
	if strings.TrimSpace(in.OfferCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer code is required")
	}
	if strings.TrimSpace(in.StoreCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	if in.OfferType != 0 && !in.OfferType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported offer type %d", int(in.OfferType)))
	}
	return nil
}

func (s *service) PublishOffer(ctx context.Context, in PublishInput) (*models.Offer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOfferCode(ctx, in.OfferCode)
	ctx = s.logg.WithStoreCode(ctx, in.StoreCode)

	offer, err := s.offers.FindByCode(ctx, in.OfferCode, in.StoreCode)
	if err != nil {
		return nil, err
	}
	if in.OfferType != 0 && offer.OfferTypeID != in.OfferType {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("offer %s is a %s offer, not %s", offer.OfferCode, offer.OfferTypeID, in.OfferType))
	}

	att, err := s.begin(ctx, offer, in.UpdatedBy)
	if err != nil {
		return nil, err
	}
	// Once claimed, the attempt runs to an outcome even if the caller goes
	// away; each remote call stays bounded by its own request timeout.
	ctx = context.WithoutCancel(ctx)
	for _, phase := range []Phase{PhasePrepare, PhaseConfigure, PhaseRelease} {
		if err := s.runPhase(ctx, att, phase); err != nil {
			return nil, err
		}
	}
	return att.offer, nil
}

// begin validates the offer locally and claims it. Nothing remote has been
// called when it returns an error, and the stored status is untouched.
func (s *service) begin(ctx context.Context, offer *models.Offer, actor string) (*attempt, error) {
	v, err := variantFor(offer.OfferTypeID)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(offer); err != nil {
		return nil, err
	}
	if strings.TrimSpace(actor) == "" {
		actor = s.defaultActor
	}
	previous, err := s.tracker.Claim(ctx, offer, actor)
	if err != nil {
		return nil, err
	}
	att := &attempt{
		id:       s.newID(),
		offer:    offer,
		variant:  v,
		previous: previous,
		actor:    actor,
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"attempt_id": att.id,
		"region":     offer.Region,
		"offer_type": v.Type().String(),
	}), "publish attempt started")
	return att, nil
}

// runPhase executes one phase. A classified failure is handled (compensated
// and recorded) before returning, so the error is final.
func (s *service) runPhase(ctx context.Context, att *attempt, phase Phase) error {
	if att.done {
		return nil
	}
	var err error
	switch phase {
	case PhasePrepare:
		err = s.prepare(ctx, att)
	case PhaseConfigure:
		err = s.configure(ctx, att)
	case PhaseRelease:
		err = s.release(ctx, att)
	default:
		err = fmt.Errorf("unknown publish phase %q", phase)
	}
	if err == nil {
		return nil
	}
	att.done = true
	var failure *Failure
	if errors.As(err, &failure) {
		return s.handleFailure(ctx, att, failure)
	}
	return err
}

// call runs fn under policy and records the step duration.
func (s *service) call(ctx context.Context, step Step, policy retry.Policy, fn func(context.Context) error) error {
	start := time.Now()
	err := s.retry.Do(ctx, policy, string(step), fn)
	s.metrics.ObserveStep(string(step), time.Since(start))
	return err
}

// prepare covers steps 1-3: read drafts, then create the production coupons.
func (s *service) prepare(ctx context.Context, att *attempt) error {
	offer := att.offer

	err := s.call(ctx, StepDraftRead, s.profiles.Short, func(ctx context.Context) error {
		draft, err := s.ledger.FetchDraftPayload(ctx, offer.OfferCode, offer.StoreCode, enums.EnvironmentStaging)
		if err != nil {
			return err
		}
		att.draft = draft
		if offer.HasUpgradePath() {
			upgrade, err := s.ledger.FetchDraftPayload(ctx, *offer.UpgradeOfferCode, offer.StoreCode, enums.EnvironmentStaging)
			if err != nil {
				return err
			}
			att.upgradeDraft = upgrade
		}
		return nil
	})
	if err != nil {
		return att.fail(KindPreMutation, StepDraftRead, couponledger.Subsystem, err)
	}

	err = s.call(ctx, StepDraftRead, s.profiles.Short, func(ctx context.Context) error {
		_, err := s.content.FindEntry(ctx, offer.Region, offer.OfferCode)
		return err
	})
	if err != nil {
		return att.fail(KindPreMutation, StepDraftRead, contentstore.Subsystem, err)
	}

	err = s.call(ctx, StepCouponCreate, s.profiles.Short, func(ctx context.Context) error {
		coupon, err := s.ledger.CreateCoupon(ctx, couponledger.CreateCouponInput{
			Payload:        att.variant.CouponPayload(offer, *att.draft, false),
			PlanCode:       offer.PlanCode,
			StoreCode:      offer.StoreCode,
			Env:            enums.EnvironmentProduction,
			IdempotencyKey: att.key(StepCouponCreate),
		})
		if err != nil {
			return err
		}
		att.coupon = coupon
		return nil
	})
	if err != nil {
		f := att.fail(KindPreMutation, StepCouponCreate, couponledger.Subsystem, err)
		f.RemoteReached = true
		return f
	}

	if !offer.HasUpgradePath() {
		return nil
	}
	err = s.call(ctx, StepUpgradeCouponCreate, s.profiles.Short, func(ctx context.Context) error {
		coupon, err := s.ledger.CreateCoupon(ctx, couponledger.CreateCouponInput{
			Payload:        att.variant.CouponPayload(offer, *att.upgradeDraft, true),
			PlanCode:       *offer.UpgradePlanCode,
			StoreCode:      offer.StoreCode,
			Env:            enums.EnvironmentProduction,
			IdempotencyKey: att.key(StepUpgradeCouponCreate),
		})
		if err != nil {
			return err
		}
		att.upgradeCoupon = coupon
		return nil
	})
	if err != nil {
		return att.fail(KindRemoteMutation, StepUpgradeCouponCreate, couponledger.Subsystem, err)
	}
	return nil
}

// configure is step 4: write the offer entry into the production document.
func (s *service) configure(ctx context.Context, att *attempt) error {
	offer := att.offer
	section := att.variant.Section()
	entry := att.variant.ConfigEntry(offer, att.coupon, att.upgradeCoupon, s.now())

	err := s.call(ctx, StepConfigWrite, s.profiles.Short, func(ctx context.Context) error {
		commit, err := s.config.Apply(ctx, enums.EnvironmentProduction, att.key(StepConfigWrite), func(doc *featureconfig.Document) error {
			att.priorEntry = nil
			if prior, ok := doc.Find(offer.Region, section, offer.OfferCode); ok {
				att.priorEntry = &prior
			}
			return doc.Upsert(offer.Region, section, entry)
		})
		if err != nil {
			return err
		}
		att.commit = &commit
		rollbackVersion := commit.RollbackVersion
		offer.GLRollbackVersion = &rollbackVersion
		return nil
	})
	if err != nil {
		kind := KindRemoteMutation
		if errors.Is(err, configstore.ErrLockBusy) {
			kind = KindLockContention
		}
		return att.fail(kind, StepConfigWrite, featureconfig.Subsystem, err)
	}
	return nil
}

// release covers steps 5-9: make the offer live and persist the result.
func (s *service) release(ctx context.Context, att *attempt) error {
	offer := att.offer
	att.contentTouched = true

	err := s.call(ctx, StepEdgeInvalidate, s.profiles.Short, func(ctx context.Context) error {
		return s.edge.InvalidateCache(ctx, edgegateway.InvalidateInput{
			StoreCode:      offer.StoreCode,
			Env:            enums.EnvironmentProduction,
			Region:         offer.Region,
			IdempotencyKey: att.key(StepEdgeInvalidate),
		})
	})
	if err != nil {
		return att.fail(KindRemoteMutation, StepEdgeInvalidate, edgegateway.Subsystem, err)
	}

	err = s.call(ctx, StepPropagationValidate, s.profiles.Propagation, func(ctx context.Context) error {
		return s.edge.ValidateLive(ctx, offer.Region, offer.OfferCode, enums.EnvironmentProduction, att.coupon.Code)
	})
	if err != nil {
		return att.fail(KindRemoteMutation, StepPropagationValidate, edgegateway.Subsystem, err)
	}

	err = s.call(ctx, StepContentPublish, s.profiles.Short, func(ctx context.Context) error {
		return s.content.SetEnvironment(ctx, contentstore.SetEnvironmentInput{
			Region:         offer.Region,
			Code:           offer.OfferCode,
			StoreCode:      offer.StoreCode,
			Env:            enums.EnvironmentProduction,
			IdempotencyKey: att.key(StepContentPublish),
		})
	})
	if err != nil {
		return att.fail(KindRemoteMutation, StepContentPublish, contentstore.Subsystem, err)
	}
	att.contentFlipped = true

	if !att.deferCacheFlush {
		err = s.call(ctx, StepContentCacheInvalidate, s.profiles.Short, func(ctx context.Context) error {
			return s.cache.InvalidateContent(ctx, offer.Region, offer.OfferCode)
		})
		if err != nil {
			return att.fail(KindRemoteMutation, StepContentCacheInvalidate, pubsub.Subsystem, err)
		}
	}

	return s.persist(ctx, att)
}

// persist is step 9. Every remote system already shows the offer as live,
// so a failure here is reported but not compensated.
func (s *service) persist(ctx context.Context, att *attempt) error {
	offer := att.offer
	couponID := att.coupon.ID
	offer.CouponID = &couponID
	if att.upgradeCoupon != nil {
		upgradeID := att.upgradeCoupon.ID
		offer.UpgradeCouponID = &upgradeID
	}
	offer.UpdatedBy = att.actor

	start := time.Now()
	err := s.tracker.MarkPublished(context.WithoutCancel(ctx), offer)
	s.metrics.ObserveStep(string(StepPersist), time.Since(start))
	if err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"step":       StepPersist,
			"region":     offer.Region,
			"attempt_id": att.id,
		}), "offer is live but its publish could not be persisted", err)
		s.metrics.IncOutcome(att.variant.Type().String(), enums.OfferStatusProdPending.String())
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("[%s] persist published offer %s", offer.Region, offer.OfferCode))
	}
	s.metrics.IncOutcome(att.variant.Type().String(), enums.OfferStatusProd.String())
	s.logg.Info(s.logg.WithAttempt(ctx, att.id), "offer published")
	return nil
}

// handleFailure compensates when needed, records the final status and the
// failure note, and returns the error the caller should see.
func (s *service) handleFailure(ctx context.Context, att *attempt, f *Failure) error {
	logCtx := s.logg.WithFields(s.logg.WithAttempt(ctx, att.id), f.LogFields())
	logCtx = s.logg.WithStoreCode(logCtx, att.offer.StoreCode)
	s.logg.Error(logCtx, "publish step failed", f.Err)

	result := f.typed()
	var target enums.OfferStatus
	switch {
	case !f.NeedsCompensation() && f.RemoteReached:
		target = enums.OfferStatusProdErrPub
	case !f.NeedsCompensation():
		target = att.previous
	default:
		if rbErr := s.compensate(ctx, att); rbErr != nil {
			s.metrics.IncRollback("failed")
			s.logg.Error(logCtx, "publish compensation failed", rbErr)
			target = enums.OfferStatusProdRollback
			result = rollbackFailed(f, rbErr)
		} else {
			s.metrics.IncRollback("ok")
			target = enums.OfferStatusProdFail
		}
	}

	note := types.PublishError{
		At:        s.now().UTC(),
		Step:      string(f.Step),
		Subsystem: f.Subsystem,
		Kind:      string(f.Kind),
		Message:   pkgerrors.Describe(f.typed()),
	}
	if err := s.tracker.MarkFailed(context.WithoutCancel(ctx), att.offer, target, note); err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "target_status", target.String()), "record publish failure", err)
	}
	s.metrics.IncOutcome(att.variant.Type().String(), target.String())
	return result
}
