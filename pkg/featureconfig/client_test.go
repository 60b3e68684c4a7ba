package featureconfig

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/internal/retry"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://config.test", "cfg-key", restclient.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	return client
}

const currentBody = `{"version":12,"value":{"configurationVersion":12,"regions":{"US":{"offers":[{"offerCode":"A","couponCode":"A","planCode":"p","eligibleSegments":[],"durationMonths":1,"publishedAt":"2026-01-01T00:00:00Z"}],"retentionOffers":[],"extensionOffers":[]}}}}`

func TestGetCurrentVersionIsStableAcrossReads(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/environments/production/versions/current", req.URL.Path)
		return respond(http.StatusOK, currentBody), nil
	})

	first, err := client.GetCurrentVersion(context.Background(), enums.EnvironmentProduction)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := client.GetCurrentVersion(context.Background(), enums.EnvironmentProduction)
		require.NoError(t, err)
		assert.Equal(t, first.Version, again.Version)
		assert.Equal(t, first.Document.Regions, again.Document.Regions)
	}
	assert.Equal(t, int64(12), first.Version)
}

func TestWriteVersionCarriesBaseVersion(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/environments/production/versions", req.URL.Path)
		assert.Equal(t, "a1:config-write", req.Header.Get(restclient.IdempotencyHeader))
		var body struct {
			BaseVersion int64           `json:"baseVersion"`
			Value       json.RawMessage `json:"value"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, int64(12), body.BaseVersion)
		return respond(http.StatusCreated, `{"version":13}`), nil
	})

	version, err := client.WriteVersion(context.Background(), enums.EnvironmentProduction, 12, &Document{}, "a1:config-write")
	require.NoError(t, err)
	assert.Equal(t, int64(13), version)
}

func TestWriteVersionRejectsNonIncreasingVersion(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusCreated, `{"version":12}`), nil
	})
	_, err := client.WriteVersion(context.Background(), enums.EnvironmentProduction, 12, &Document{}, "")
	assert.Error(t, err)
}

func TestValidateCandidateRejectionIsPermanent(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"valid":false,"errors":["duplicate coupon"]}`), nil
	})
	err := client.ValidateCandidate(context.Background(), enums.EnvironmentProduction, &Document{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate coupon")
	assert.False(t, retry.ShouldRetry(err))
}

func TestRollbackToVersion(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/environments/production/versions/12/restore", req.URL.Path)
		return respond(http.StatusNoContent, ""), nil
	})
	require.NoError(t, client.RollbackToVersion(context.Background(), enums.EnvironmentProduction, 12, ""))
}
