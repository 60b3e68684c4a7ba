package couponledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://ledger.test", "ledger-key", restclient.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	return client
}

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func TestFetchDraftPayload(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/stores/google/coupons/SPRING25/draft", req.URL.Path)
		assert.Equal(t, "staging", req.URL.Query().Get("env"))
		assert.Equal(t, "ledger-key", req.Header.Get("X-Api-Key"))
		return respond(http.StatusOK, `{"code":"SPRING25","name":"Spring","discountType":"percent","discountAmount":"25.00","durationMonths":3}`), nil
	})

	payload, err := client.FetchDraftPayload(context.Background(), "SPRING25", "google", enums.EnvironmentStaging)
	require.NoError(t, err)
	assert.Equal(t, enums.DiscountTypePercent, payload.DiscountType)
	assert.True(t, decimal.RequireFromString("25").Equal(payload.DiscountAmount))
	assert.Equal(t, 3, payload.DurationMonths)
}

func TestFetchDraftPayloadNotFound(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, "missing"), nil
	})
	_, err := client.FetchDraftPayload(context.Background(), "SPRING25", "google", enums.EnvironmentStaging)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCreateCouponSendsPlanAndIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/stores/google/coupons", req.URL.Path)
		assert.Equal(t, "production", req.URL.Query().Get("env"))
		assert.Equal(t, "a1:create-coupon", req.Header.Get(restclient.IdempotencyHeader))

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "premium-monthly", body["planCode"])
		assert.Equal(t, "SPRING25", body["code"])
		return respond(http.StatusCreated, `{"id":"cpn_123","code":"SPRING25"}`), nil
	})

	coupon, err := client.CreateCoupon(context.Background(), CreateCouponInput{
		Payload:        DraftPayload{Code: "SPRING25", DiscountType: enums.DiscountTypePercent, DiscountAmount: decimal.NewFromInt(25)},
		PlanCode:       "premium-monthly",
		StoreCode:      "google",
		Env:            enums.EnvironmentProduction,
		IdempotencyKey: "a1:create-coupon",
	})
	require.NoError(t, err)
	assert.Equal(t, "cpn_123", coupon.ID)
	assert.Equal(t, "SPRING25", coupon.Code)
}

func TestCreateCouponRejectsEmptyID(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusCreated, `{}`), nil
	})
	_, err := client.CreateCoupon(context.Background(), CreateCouponInput{
		Payload:  DraftPayload{Code: "SPRING25"},
		PlanCode: "premium-monthly",
	})
	require.Error(t, err)
}

func TestDeactivateCouponTreatsMissingAsDone(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		assert.Equal(t, "/stores/google/coupons/SPRING25/deactivate", req.URL.Path)
		return respond(http.StatusNotFound, ""), nil
	})
	err := client.DeactivateCoupon(context.Background(), DeactivateInput{
		OfferCode: "SPRING25", CouponCode: "SPRING25", StoreCode: "google", Env: enums.EnvironmentStaging, UpdatedBy: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDeactivateCouponSurfacesServerErrors(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusBadGateway, "upstream"), nil
	})
	err := client.DeactivateCoupon(context.Background(), DeactivateInput{CouponCode: "SPRING25", StoreCode: "google", Env: enums.EnvironmentProduction})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, restclient.StatusOf(err))
}
