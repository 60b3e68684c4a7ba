package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub content cache topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and the single publisher for the
// content cache topic. The publisher batches, so it is created once and
// stopped on Close to flush anything still buffered.
type Client struct {
	ps      *pubsub.Client
	topic   string
	timeout time.Duration

	once      sync.Once
	publisher *pubsub.Publisher
}

// NewClient connects to Pub/Sub and refuses to start when the content cache
// topic is missing. PUBSUB_EMULATOR_HOST is honoured by the SDK.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	topic, err := topicResourceName(gcp.ProjectID, cfg.ContentCacheTopic)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewClient(ctx, strings.TrimSpace(gcp.ProjectID))
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{ps: ps, topic: topic, timeout: cfg.PublishTimeout}
	if c.timeout <= 0 {
		c.timeout = defaultPublishTimeout
	}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub client initialized")
	}
	return c, nil
}

// ContentCachePublisher returns the shared publisher for the content cache topic.
func (c *Client) ContentCachePublisher() *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	c.once.Do(func() {
		p := c.ps.Publisher(c.topic)
		// Invalidations gate a saga step, so flush promptly instead of
		// waiting for a full batch.
		p.PublishSettings.DelayThreshold = 5 * time.Millisecond
		p.PublishSettings.Timeout = c.timeout
		c.publisher = p
	})
	return c.publisher
}

// PublishTimeout bounds a single notification round trip.
func (c *Client) PublishTimeout() time.Duration {
	if c == nil || c.timeout <= 0 {
		return defaultPublishTimeout
	}
	return c.timeout
}

// Ping backs /health/ready by looking up the content cache topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", c.topic)
	default:
		return fmt.Errorf("checking topic %s: %w", c.topic, err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.ps.Close()
}

// topicResourceName accepts a bare topic id or a full
// projects/<p>/topics/<t> name.
func topicResourceName(projectID, name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", errNoTopic
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n, nil
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return "", errProjectIDRequired
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n), nil
}
