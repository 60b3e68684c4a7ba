package contentstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

// Subsystem is the name used in errors and logs.
const Subsystem = "content-store"

// Entry is the content record backing an offer in one region.
type Entry struct {
	ID          string            `json:"id"`
	Region      string            `json:"region"`
	Code        string            `json:"code"`
	Environment enums.Environment `json:"environment"`
	Status      string            `json:"status"`
	Fields      map[string]any    `json:"fields,omitempty"`
}

// SetEnvironmentInput moves an entry to env and publishes it there.
type SetEnvironmentInput struct {
	Region         string
	Code           string
	StoreCode      string
	Env            enums.Environment
	IdempotencyKey string
}

// Client talks to the content-management store.
type Client struct {
	rest *restclient.Client
}

// NewClient builds the content store client authenticated with a bearer token.
func NewClient(baseURL, token string, opts ...restclient.Option) (*Client, error) {
	var auth string
	if strings.TrimSpace(token) != "" {
		auth = "Bearer " + strings.TrimSpace(token)
	}
	opts = append([]restclient.Option{restclient.WithHeader("Authorization", auth)}, opts...)
	rest, err := restclient.New(Subsystem, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// FindEntry returns the content entry for an offer code in region.
func (c *Client) FindEntry(ctx context.Context, region, code string) (*Entry, error) {
	if region == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content entry region and code are required")
	}
	var entry Entry
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   restclient.PathEscape("entries", region, code),
	}, &entry)
	if err != nil {
		if restclient.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("content entry %s/%s not found", region, code))
		}
		return nil, err
	}
	return &entry, nil
}

// SetEnvironment flips the entry's environment tag and publishes it.
func (c *Client) SetEnvironment(ctx context.Context, in SetEnvironmentInput) error {
	return c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPut,
		Path:   restclient.PathEscape("entries", in.Region, in.Code, "environment"),
		Body: map[string]any{
			"environment": in.Env,
			"storeCode":   in.StoreCode,
			"publish":     true,
		},
		IdempotencyKey: in.IdempotencyKey,
	}, nil)
}

// ArchiveEntry archives the entry. Archiving a missing entry succeeds.
func (c *Client) ArchiveEntry(ctx context.Context, region, code, idempotencyKey string) error {
	err := c.rest.Do(ctx, restclient.Request{
		Method:         http.MethodPost,
		Path:           restclient.PathEscape("entries", region, code, "archive"),
		IdempotencyKey: idempotencyKey,
	}, nil)
	if restclient.IsNotFound(err) {
		return nil
	}
	return err
}
