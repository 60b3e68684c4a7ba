package featureconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/restclient"
)

// Subsystem is the name used in errors and logs.
const Subsystem = "feature-config"

// Snapshot is the current document of an environment and its version.
type Snapshot struct {
	Version  int64
	Document *Document
}

// Client talks to the versioned feature-configuration service.
type Client struct {
	rest *restclient.Client
}

// NewClient builds the configuration service client.
func NewClient(baseURL, apiKey string, opts ...restclient.Option) (*Client, error) {
	opts = append([]restclient.Option{restclient.WithHeader("X-Api-Key", apiKey)}, opts...)
	rest, err := restclient.New(Subsystem, baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// GetCurrentVersion reads the live document of env.
func (c *Client) GetCurrentVersion(ctx context.Context, env enums.Environment) (*Snapshot, error) {
	var resp struct {
		Version int64           `json:"version"`
		Value   json.RawMessage `json:"value"`
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   restclient.PathEscape("environments", env.String(), "versions", "current"),
	}, &resp)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(resp.Value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "feature-config returned an unreadable document")
	}
	doc.ConfigurationVersion = resp.Version
	return &Snapshot{Version: resp.Version, Document: doc}, nil
}

// ValidateCandidate asks the service to validate doc without committing it.
func (c *Client) ValidateCandidate(ctx context.Context, env enums.Environment, doc *Document) error {
	if doc == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "candidate document is required")
	}
	var resp struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   restclient.PathEscape("environments", env.String(), "validate"),
		Body:   map[string]any{"value": doc},
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.Valid {
		rejected := &restclient.RemoteError{
			Subsystem: Subsystem,
			Status:    http.StatusUnprocessableEntity,
			Body:      strings.Join(resp.Errors, "; "),
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, rejected, "feature-config rejected candidate").
			WithDetails(map[string]any{"errors": resp.Errors})
	}
	return nil
}

// WriteVersion commits doc as a new version based on baseVersion and returns
// the new version number. The service rejects stale base versions with 409.
func (c *Client) WriteVersion(ctx context.Context, env enums.Environment, baseVersion int64, doc *Document, idempotencyKey string) (int64, error) {
	if doc == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "document is required")
	}
	var resp struct {
		Version int64 `json:"version"`
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   restclient.PathEscape("environments", env.String(), "versions"),
		Body: map[string]any{
			"baseVersion": baseVersion,
			"value":       doc,
		},
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Version <= baseVersion {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("feature-config returned non-increasing version %d (base %d)", resp.Version, baseVersion))
	}
	return resp.Version, nil
}

// RollbackToVersion restores version as the live document of env.
func (c *Client) RollbackToVersion(ctx context.Context, env enums.Environment, version int64, idempotencyKey string) error {
	return c.rest.Do(ctx, restclient.Request{
		Method:         http.MethodPost,
		Path:           restclient.PathEscape("environments", env.String(), "versions", strconv.FormatInt(version, 10), "restore"),
		IdempotencyKey: idempotencyKey,
	}, nil)
}
