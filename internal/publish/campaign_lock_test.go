package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/internal/configstore"
	"github.com/angelmondragon/offers-backend/internal/lock"
	"github.com/angelmondragon/offers-backend/internal/retry"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
)

// lockMemory is an in-memory stand-in for the Redis keys behind lock.RedisLocker.
type lockMemory struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *lockMemory) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.keys[key]; held {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *lockMemory) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != expected {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *lockMemory) LockKey(resource, env string) string { return "ofr:lock:" + resource + ":" + env }

// countingLocker records how often an acquire lost to another holder.
type countingLocker struct {
	lock.Locker
	busy atomic.Int32
}

func (c *countingLocker) Acquire(ctx context.Context, resourceKey, env string) (lock.Token, error) {
	token, err := c.Locker.Acquire(ctx, resourceKey, env)
	if errors.Is(err, lock.ErrBusy) {
		c.busy.Add(1)
	}
	return token, err
}

// versionedDocument is a feature-config service that rejects stale writes.
type versionedDocument struct {
	mu      sync.Mutex
	version int64
	raw     []byte
	// beforeFirstRead runs once, inside the lock, before the first read.
	beforeFirstRead func()
	reads           atomic.Int32
	writeDelay      time.Duration
}

func newVersionedDocument() *versionedDocument {
	return &versionedDocument{version: 10, raw: []byte(`{"configurationVersion":10,"regions":{}}`)}
}

func (v *versionedDocument) GetCurrentVersion(context.Context, enums.Environment) (*featureconfig.Snapshot, error) {
	if v.reads.Add(1) == 1 && v.beforeFirstRead != nil {
		v.beforeFirstRead()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	doc, err := featureconfig.Decode(v.raw)
	if err != nil {
		return nil, err
	}
	return &featureconfig.Snapshot{Version: v.version, Document: doc}, nil
}

func (v *versionedDocument) ValidateCandidate(context.Context, enums.Environment, *featureconfig.Document) error {
	return nil
}

func (v *versionedDocument) WriteVersion(_ context.Context, _ enums.Environment, base int64, doc *featureconfig.Document, _ string) (int64, error) {
	time.Sleep(v.writeDelay)
	v.mu.Lock()
	defer v.mu.Unlock()
	if base != v.version {
		return 0, fmt.Errorf("stale base version %d, current %d", base, v.version)
	}
	raw, err := doc.MarshalJSON()
	if err != nil {
		return 0, err
	}
	v.version++
	v.raw = raw
	return v.version, nil
}

func (v *versionedDocument) RollbackToVersion(context.Context, enums.Environment, int64, string) error {
	return nil
}

func (v *versionedDocument) current(t *testing.T) (*featureconfig.Document, int64) {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	doc, err := featureconfig.Decode(v.raw)
	require.NoError(t, err)
	return doc, v.version
}

func useLockedStore(t *testing.T, h *harness, doc *versionedDocument) *countingLocker {
	t.Helper()
	inner, err := lock.NewRedisLocker(&lockMemory{keys: map[string]string{}}, time.Minute)
	require.NoError(t, err)
	locker := &countingLocker{Locker: inner}
	store, err := configstore.NewStore(configstore.StoreParams{Locker: locker, Service: doc})
	require.NoError(t, err)
	h.svc.config = store
	h.svc.concurrency = 4
	return locker
}

func TestCampaignSiblingsLoseTheConfigLockWithoutRetries(t *testing.T) {
	h := newHarness(t)
	codes := []string{"A", "B", "C", "D"}
	for _, code := range codes {
		h.addOffer(code)
	}
	id := seedCampaign(h, codes...)

	doc := newVersionedDocument()
	locker := useLockedStore(t, h, doc)
	// The first writer holds the lock until every sibling has been turned away.
	doc.beforeFirstRead = func() {
		deadline := time.Now().Add(2 * time.Second)
		for locker.busy.Load() < int32(len(codes)-1) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	published, err := h.svc.PublishCampaign(context.Background(), CampaignInput{CampaignID: id})
	require.Error(t, err)

	require.Len(t, published, 1)
	winner := published[0].OfferCode
	assert.Equal(t, int32(3), locker.busy.Load())

	var campaignErr *CampaignError
	require.ErrorAs(t, err, &campaignErr)
	require.Len(t, campaignErr.Items, 3)
	for _, item := range campaignErr.Items {
		assert.Equal(t, pkgerrors.CodeLockContention, pkgerrors.CodeOf(item.Err), item.OfferCode)
		assert.Equal(t, enums.OfferStatusProdFail, h.offers.offers[item.OfferCode+"/google"].StatusID)
	}
	assert.Len(t, h.ledger.deactivated, 6, "each loser deactivates its coupon in both environments")

	live, version := doc.current(t)
	assert.Equal(t, int64(11), version)
	for _, code := range codes {
		_, ok := live.Find("US", featureconfig.SectionOffers, code)
		assert.Equal(t, code == winner, ok, code)
	}
}

func TestCampaignSiblingsSerializeOnTheConfigLockWithRetries(t *testing.T) {
	h := newHarness(t)
	codes := []string{"A", "B", "C", "D"}
	for _, code := range codes {
		h.addOffer(code)
	}
	id := seedCampaign(h, codes...)

	doc := newVersionedDocument()
	doc.writeDelay = 2 * time.Millisecond
	useLockedStore(t, h, doc)
	h.svc.profiles.Short = retry.Policy{Attempts: 20, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	published, err := h.svc.PublishCampaign(context.Background(), CampaignInput{CampaignID: id})
	require.NoError(t, err)
	require.Len(t, published, len(codes))

	live, version := doc.current(t)
	assert.Equal(t, int64(10+len(codes)), version, "one version per item, none lost")
	for _, code := range codes {
		_, ok := live.Find("US", featureconfig.SectionOffers, code)
		assert.True(t, ok, code)
	}
	assert.Empty(t, h.ledger.deactivated)
}

func TestCampaignRunsToCompletionAfterCallerCancels(t *testing.T) {
	h := newHarness(t)
	h.addOffer("A")
	h.addOffer("B")
	id := seedCampaign(h, "A", "B")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.edge.onInvalidate = cancel
	notLive := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stale entry"), "offer not live")
	h.edge.validateErr["A"] = []error{notLive, nil}

	published, err := h.svc.PublishCampaign(ctx, CampaignInput{CampaignID: id})
	require.NoError(t, err)
	require.Len(t, published, 2)
	for _, offer := range published {
		assert.Equal(t, enums.OfferStatusProd, offer.StatusID)
	}
	assert.Equal(t, 1, h.cache.flushes)
}
