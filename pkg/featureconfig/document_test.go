package featureconfig

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreservesUnknownKeys(t *testing.T) {
	raw := `{"configurationVersion":7,"featureFlags":{"darkMode":true},"regions":{"US":{"offers":[{"offerCode":"A","couponCode":"A","planCode":"p","eligibleSegments":["new"],"durationMonths":1,"publishedAt":"2026-01-01T00:00:00Z"}],"retentionOffers":[],"extensionOffers":[]}}}`
	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.ConfigurationVersion)

	entry, ok := doc.Find("US", SectionOffers, "A")
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, entry.EligibleSegments)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, map[string]any{"darkMode": true}, generic["featureFlags"])
}

func TestUpsertReplacesAndKeepsOrder(t *testing.T) {
	doc, err := Decode(nil)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, doc.Upsert("US", SectionRetentionOffers, Entry{OfferCode: "B", CouponCode: "B1", PublishedAt: now}))
	require.NoError(t, doc.Upsert("US", SectionRetentionOffers, Entry{OfferCode: "A", CouponCode: "A1", PublishedAt: now}))
	require.NoError(t, doc.Upsert("US", SectionRetentionOffers, Entry{OfferCode: "B", CouponCode: "B2", PublishedAt: now}))

	list := doc.Regions["US"].RetentionOffers
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].OfferCode)
	assert.Equal(t, "B2", list[1].CouponCode)
	assert.Empty(t, doc.Regions["US"].Offers)
}

func TestUpsertRejectsBadInput(t *testing.T) {
	doc := &Document{}
	assert.Error(t, doc.Upsert("", SectionOffers, Entry{OfferCode: "A"}))
	assert.Error(t, doc.Upsert("US", SectionOffers, Entry{}))
	assert.Error(t, doc.Upsert("US", Section("bogus"), Entry{OfferCode: "A"}))
}

func TestRemove(t *testing.T) {
	doc := &Document{}
	require.NoError(t, doc.Upsert("US", SectionOffers, Entry{OfferCode: "A"}))
	require.NoError(t, doc.Upsert("US", SectionOffers, Entry{OfferCode: "B"}))

	assert.True(t, doc.Remove("US", SectionOffers, "A"))
	assert.False(t, doc.Remove("US", SectionOffers, "A"))
	assert.False(t, doc.Remove("EU", SectionOffers, "B"))
	_, ok := doc.Find("US", SectionOffers, "B")
	assert.True(t, ok)
}
