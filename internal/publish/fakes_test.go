package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/internal/configstore"
	"github.com/angelmondragon/offers-backend/internal/offers"
	"github.com/angelmondragon/offers-backend/internal/retry"
	"github.com/angelmondragon/offers-backend/pkg/contentstore"
	"github.com/angelmondragon/offers-backend/pkg/couponledger"
	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/edgegateway"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/types"
)

var errRemote = errors.New("remote unavailable")

type fakeOffers struct {
	mu     sync.Mutex
	offers map[string]*models.Offer
}

func (f *fakeOffers) FindByCode(_ context.Context, offerCode, storeCode string) (*models.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offer, ok := f.offers[offerCode+"/"+storeCode]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("offer %s not found in store %s", offerCode, storeCode))
	}
	return offer, nil
}

type fakeCampaigns struct {
	campaign *models.Campaign
	links    []models.CampaignOffer
}

func (f *fakeCampaigns) FindCampaign(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	return f.campaign, nil
}

func (f *fakeCampaigns) ListCampaignOffers(context.Context, uuid.UUID) ([]models.CampaignOffer, error) {
	return f.links, nil
}

// fakeTracker applies the real state machine rules in memory.
type fakeTracker struct {
	mu          sync.Mutex
	notes       map[string][]types.PublishError
	published   []string
	persistErr  error
	claimCalled int
}

func (f *fakeTracker) Claim(_ context.Context, offer *models.Offer, actor string) (enums.OfferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalled++
	if err := offers.EnsurePublishable(offer); err != nil {
		return "", err
	}
	previous := offer.StatusID
	if err := offers.Transition(offer, enums.OfferStatusProdPending); err != nil {
		return "", err
	}
	offer.UpdatedBy = actor
	return previous, nil
}

func (f *fakeTracker) MarkPublished(_ context.Context, offer *models.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	if err := offers.Transition(offer, enums.OfferStatusProd); err != nil {
		return err
	}
	f.published = append(f.published, offer.OfferCode)
	return nil
}

func (f *fakeTracker) MarkFailed(_ context.Context, offer *models.Offer, to enums.OfferStatus, note types.PublishError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := offers.Transition(offer, to); err != nil {
		return err
	}
	if f.notes == nil {
		f.notes = map[string][]types.PublishError{}
	}
	f.notes[offer.OfferCode] = append(f.notes[offer.OfferCode], note)
	offer.DraftData = offer.DraftData.AppendPublishError(note)
	return nil
}

type fakeLedger struct {
	mu          sync.Mutex
	draftErr    error
	createErr   map[string]error
	deactErr    error
	created     []couponledger.CreateCouponInput
	deactivated []couponledger.DeactivateInput
}

func (f *fakeLedger) FetchDraftPayload(_ context.Context, code, _ string, env enums.Environment) (*couponledger.DraftPayload, error) {
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	if env != enums.EnvironmentStaging {
		return nil, fmt.Errorf("draft read from %s", env)
	}
	return &couponledger.DraftPayload{
		Code:           code,
		Name:           code + " coupon",
		DiscountType:   enums.DiscountTypePercent,
		DiscountAmount: decimal.NewFromInt(20),
		DurationMonths: 3,
	}, nil
}

func (f *fakeLedger) CreateCoupon(_ context.Context, in couponledger.CreateCouponInput) (*couponledger.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[in.Payload.Code]; err != nil {
		return nil, err
	}
	f.created = append(f.created, in)
	return &couponledger.Coupon{ID: "cpn_" + in.Payload.Code, Code: in.Payload.Code}, nil
}

func (f *fakeLedger) DeactivateCoupon(_ context.Context, in couponledger.DeactivateInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, in)
	return f.deactErr
}

type fakeContent struct {
	mu          sync.Mutex
	findErr     error
	publishErr  map[string]error
	archiveErr  error
	setCalls    []contentstore.SetEnvironmentInput
	archived    []string
	archiveKeys []string
}

func (f *fakeContent) FindEntry(_ context.Context, region, code string) (*contentstore.Entry, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return &contentstore.Entry{ID: "entry_" + code, Region: region, Code: code}, nil
}

func (f *fakeContent) SetEnvironment(_ context.Context, in contentstore.SetEnvironmentInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, in)
	if in.Env == enums.EnvironmentProduction {
		if err := f.publishErr[in.Code]; err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeContent) ArchiveEntry(_ context.Context, _, code, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, code)
	f.archiveKeys = append(f.archiveKeys, idempotencyKey)
	return f.archiveErr
}

type fakeConfig struct {
	mu        sync.Mutex
	version   int64
	doc       *featureconfig.Document
	applyErr  error
	revertErr error
	keys      []string
	reverts   []configstore.Commit
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{version: 10, doc: &featureconfig.Document{ConfigurationVersion: 10}}
}

func (f *fakeConfig) Apply(_ context.Context, _ enums.Environment, key string, mutate func(*featureconfig.Document) error) (configstore.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.applyErr != nil {
		return configstore.Commit{}, f.applyErr
	}
	if err := mutate(f.doc); err != nil {
		return configstore.Commit{}, err
	}
	base := f.version
	f.version++
	f.doc.ConfigurationVersion = f.version
	return configstore.Commit{BaseVersion: base, Version: f.version, RollbackVersion: f.version - 1}, nil
}

func (f *fakeConfig) Revert(_ context.Context, _ enums.Environment, commit configstore.Commit, _ string, undo func(*featureconfig.Document) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts = append(f.reverts, commit)
	if f.revertErr != nil {
		return f.revertErr
	}
	return undo(f.doc)
}

type fakeEdge struct {
	mu            sync.Mutex
	invalidateErr error
	validateErr   map[string][]error
	invalidations int
	validations   int
	onInvalidate  func()
}

func (f *fakeEdge) InvalidateCache(context.Context, edgegateway.InvalidateInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	if f.onInvalidate != nil {
		f.onInvalidate()
	}
	return f.invalidateErr
}

// ValidateLive pops one scripted error per call for code.
func (f *fakeEdge) ValidateLive(_ context.Context, _, code string, _ enums.Environment, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validations++
	queue := f.validateErr[code]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	if len(queue) > 1 {
		f.validateErr[code] = queue[1:]
	}
	return err
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
	flushes     int
	err         error
}

func (f *fakeCache) InvalidateContent(_ context.Context, region, offerCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, region+"/"+offerCode)
	return f.err
}

func (f *fakeCache) FlushAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.err
}

type harness struct {
	svc      *service
	offers   *fakeOffers
	camps    *fakeCampaigns
	tracker  *fakeTracker
	ledger   *fakeLedger
	content  *fakeContent
	config   *fakeConfig
	edge     *fakeEdge
	cache    *fakeCache
	attempts atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		offers:  &fakeOffers{offers: map[string]*models.Offer{}},
		camps:   &fakeCampaigns{},
		tracker: &fakeTracker{},
		ledger:  &fakeLedger{createErr: map[string]error{}},
		content: &fakeContent{publishErr: map[string]error{}},
		config:  newFakeConfig(),
		edge:    &fakeEdge{validateErr: map[string][]error{}},
		cache:   &fakeCache{},
	}
	svc, err := NewService(ServiceParams{
		Offers:    h.offers,
		Campaigns: h.camps,
		Tracker:   h.tracker,
		Ledger:    h.ledger,
		Content:   h.content,
		Config:    h.config,
		Edge:      h.edge,
		Cache:     h.cache,
		Retry:     retry.NewRunner(nil),
		Profiles: retry.Profiles{
			Short:       retry.Policy{Attempts: 1},
			Propagation: retry.Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		},
		Logger:       logger.New(logger.Options{ServiceName: "publish-test", Output: io.Discard}),
		Concurrency:  2,
		DefaultActor: "publisher",
	})
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.svc.newID = func() string {
		return fmt.Sprintf("att-%d", h.attempts.Add(1))
	}
	return h
}

func (h *harness) addOffer(code string, opts ...func(*models.Offer)) *models.Offer {
	offer := &models.Offer{
		ID:             uuid.New(),
		OfferCode:      code,
		StoreCode:      "google",
		OfferTypeID:    enums.OfferTypeAcquisition,
		StatusID:       enums.OfferStatusStagingPass,
		Region:         "US",
		PlanCode:       "premium-monthly",
		DiscountType:   enums.DiscountTypePercent,
		DiscountAmount: decimal.NewFromInt(20),
		DurationMonths: 3,
		DraftData:      types.Diagnostics{},
	}
	for _, opt := range opts {
		opt(offer)
	}
	h.offers.mu.Lock()
	h.offers.offers[code+"/"+offer.StoreCode] = offer
	h.offers.mu.Unlock()
	return offer
}

func withUpgrade(plan, code string) func(*models.Offer) {
	return func(o *models.Offer) {
		o.UpgradePlanCode = &plan
		o.UpgradeOfferCode = &code
	}
}

func withType(t enums.OfferType) func(*models.Offer) {
	return func(o *models.Offer) { o.OfferTypeID = t }
}

func withStatus(s enums.OfferStatus) func(*models.Offer) {
	return func(o *models.Offer) { o.StatusID = s }
}
