package edgegateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

// Subsystem is the name used in errors and logs.
const Subsystem = "edge-gateway"

// ErrNotPropagated reports that the serving path does not yet show the
// expected coupon. It is retryable.
var ErrNotPropagated = errors.New("offer not yet propagated to edge")

// InvalidateInput scopes a cache invalidation.
type InvalidateInput struct {
	StoreCode      string
	Env            enums.Environment
	Region         string
	IdempotencyKey string
}

// Client talks to the edge validation and cache-invalidation gateway.
type Client struct {
	rest *restclient.Client
}

// NewClient builds the edge gateway client.
func NewClient(baseURL, apiKey string, opts ...restclient.Option) (*Client, error) {
	opts = append([]restclient.Option{restclient.WithHeader("X-Api-Key", apiKey)}, opts...)
	rest, err := restclient.New(Subsystem, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// InvalidateCache drops cached configuration for store/env/region.
func (c *Client) InvalidateCache(ctx context.Context, in InvalidateInput) error {
	return c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   "cache/invalidations",
		Body: map[string]string{
			"storeCode":   in.StoreCode,
			"environment": in.Env.String(),
			"region":      in.Region,
		},
		IdempotencyKey: in.IdempotencyKey,
	}, nil)
}

// ValidateLive asserts the serving path returns wantCoupon for the offer.
func (c *Client) ValidateLive(ctx context.Context, region, code string, env enums.Environment, wantCoupon string) error {
	var resp struct {
		CouponCode string `json:"couponCode"`
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   restclient.PathEscape("offers", region, code),
		Query:  url.Values{"env": {env.String()}},
	}, &resp)
	if err != nil {
		if restclient.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ErrNotPropagated, fmt.Sprintf("edge-gateway has no %s/%s yet", region, code))
		}
		return err
	}
	if resp.CouponCode != wantCoupon {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, ErrNotPropagated,
			fmt.Sprintf("edge-gateway serves coupon %q for %s/%s, want %q", resp.CouponCode, region, code, wantCoupon))
	}
	return nil
}
