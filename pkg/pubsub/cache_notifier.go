package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// Subsystem is the name used in errors and logs.
const Subsystem = "content-cache"

const (
	EventInvalidateContent = "content.invalidate"
	EventFlushAll          = "content.flush_all"
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// CacheMessage is the body consumed by the downstream content cache.
type CacheMessage struct {
	Type      string    `json:"type"`
	Region    string    `json:"region,omitempty"`
	OfferCode string    `json:"offerCode,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// CacheNotifier tells the downstream content cache to drop offer content.
type CacheNotifier struct {
	pub     publisher
	now     func() time.Time
	timeout time.Duration
}

// NewCacheNotifier wraps the content cache topic publisher.
func NewCacheNotifier(client *Client) (*CacheNotifier, error) {
	p := client.ContentCachePublisher()
	if p == nil {
		return nil, errors.New("content cache publisher not configured")
	}
	return &CacheNotifier{
		pub:     &gcpPublisher{Publisher: p},
		now:     time.Now,
		timeout: client.PublishTimeout(),
	}, nil
}

// InvalidateContent drops the cached content of one offer.
func (n *CacheNotifier) InvalidateContent(ctx context.Context, region, offerCode string) error {
	return n.send(ctx, CacheMessage{Type: EventInvalidateContent, Region: region, OfferCode: offerCode})
}

// FlushAll drops the whole content cache.
func (n *CacheNotifier) FlushAll(ctx context.Context) error {
	return n.send(ctx, CacheMessage{Type: EventFlushAll})
}

func (n *CacheNotifier) send(ctx context.Context, msg CacheMessage) error {
	if n == nil || n.pub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "content cache notifier not configured")
	}
	msg.SentAt = n.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode content cache message")
	}

	timeout := n.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, &pubsub.Message{Data: payload, Attributes: msg.attributes()})
	if result == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "content cache publish returned no result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s publish failed", Subsystem, msg.Type))
	}
	return nil
}

// attributes lets subscribers filter without decoding the body.
func (m CacheMessage) attributes() map[string]string {
	attrs := map[string]string{"event_type": m.Type}
	if m.Region != "" {
		attrs["region"] = m.Region
	}
	if m.OfferCode != "" {
		attrs["offer_code"] = m.OfferCode
	}
	return attrs
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
