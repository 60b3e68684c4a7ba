package couponledger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

// Subsystem is the name used in errors and logs.
const Subsystem = "coupon-ledger"

// DraftPayload is the coupon definition authored in the staging ledger.
type DraftPayload struct {
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	DiscountType   enums.DiscountType `json:"discountType"`
	DiscountAmount decimal.Decimal    `json:"discountAmount"`
	DurationMonths int                `json:"durationMonths"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

// CreateCouponInput describes a coupon to create in one environment.
type CreateCouponInput struct {
	Payload        DraftPayload
	PlanCode       string
	StoreCode      string
	Env            enums.Environment
	IdempotencyKey string
}

// Coupon is the ledger's answer to a create call.
type Coupon struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// DeactivateInput identifies a coupon to expire.
type DeactivateInput struct {
	OfferCode      string
	CouponCode     string
	StoreCode      string
	Env            enums.Environment
	UpdatedBy      string
	IdempotencyKey string
}

// Client talks to the coupon/discount ledger.
type Client struct {
	rest *restclient.Client
}

// NewClient builds the ledger client. apiKey is sent as X-Api-Key.
func NewClient(baseURL, apiKey string, opts ...restclient.Option) (*Client, error) {
	opts = append([]restclient.Option{restclient.WithHeader("X-Api-Key", apiKey)}, opts...)
	rest, err := restclient.New(Subsystem, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// FetchDraftPayload reads the coupon definition for code from env.
func (c *Client) FetchDraftPayload(ctx context.Context, code, store string, env enums.Environment) (*DraftPayload, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(store) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code and store are required")
	}
	var payload DraftPayload
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   restclient.PathEscape("stores", store, "coupons", code, "draft"),
		Query:  url.Values{"env": {env.String()}},
	}, &payload)
	if err != nil {
		if restclient.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("draft coupon %s not found in %s", code, env))
		}
		return nil, err
	}
	if payload.Code == "" {
		payload.Code = code
	}
	return &payload, nil
}

// CreateCoupon creates a coupon bound to a plan and returns its ledger identity.
func (c *Client) CreateCoupon(ctx context.Context, in CreateCouponInput) (*Coupon, error) {
	if strings.TrimSpace(in.Payload.Code) == "" || strings.TrimSpace(in.PlanCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code and plan are required")
	}
	body := struct {
		DraftPayload
		PlanCode string `json:"planCode"`
	}{DraftPayload: in.Payload, PlanCode: in.PlanCode}

	var coupon Coupon
	err := c.rest.Do(ctx, restclient.Request{
		Method:         http.MethodPost,
		Path:           restclient.PathEscape("stores", in.StoreCode, "coupons"),
		Query:          url.Values{"env": {in.Env.String()}},
		Body:           body,
		IdempotencyKey: in.IdempotencyKey,
	}, &coupon)
	if err != nil {
		return nil, err
	}
	if coupon.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coupon ledger returned an empty coupon id")
	}
	if coupon.Code == "" {
		coupon.Code = in.Payload.Code
	}
	return &coupon, nil
}

// DeactivateCoupon expires a coupon. A coupon the ledger does not know is
// treated as already inactive.
func (c *Client) DeactivateCoupon(ctx context.Context, in DeactivateInput) error {
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   restclient.PathEscape("stores", in.StoreCode, "coupons", in.CouponCode, "deactivate"),
		Query:  url.Values{"env": {in.Env.String()}},
		Body: map[string]string{
			"offerCode": in.OfferCode,
			"updatedBy": in.UpdatedBy,
		},
		IdempotencyKey: in.IdempotencyKey,
	}, nil)
	if restclient.IsNotFound(err) {
		return nil
	}
	return err
}
