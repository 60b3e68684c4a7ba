package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

// Subsystem names Redis in readiness output and logs.
const Subsystem = "redis"

const keyNamespace = "ofr"

var errNotInitialized = errors.New("redis client not initialized")

// releaseScript deletes KEYS[1] only while it still holds the owner token in ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// commands is the slice of go-redis used here; tests swap in an in-memory fake.
type commands interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Client backs the config write lock and the readiness probe.
type Client struct {
	cmds commands
	conn *redis.Client
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"addr":      opts.Addr,
			"db":        opts.DB,
			"pool_size": opts.PoolSize,
		}), "redis connection established")
	}
	return &Client{cmds: conn, conn: conn}, nil
}

// optionsFromConfig prefers OFFERS_REDIS_URL and fills whatever the URL left
// unset from the discrete settings.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

// SetNX stores owner under key for ttl unless the key already exists.
func (c *Client) SetNX(ctx context.Context, key string, owner any, ttl time.Duration) (bool, error) {
	if c.cmds == nil {
		return false, errNotInitialized
	}
	return c.cmds.SetNX(ctx, key, owner, ttl).Result()
}

// CompareAndDelete removes key only while it still holds owner and reports
// whether anything was removed.
func (c *Client) CompareAndDelete(ctx context.Context, key, owner string) (bool, error) {
	if c.cmds == nil {
		return false, errNotInitialized
	}
	n, err := releaseScript.Run(ctx, c.cmds, []string{key}, owner).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return n == 1, nil
}

// LockKey is ofr:lock:<resource>:<env>; empty parts are dropped.
func (c *Client) LockKey(resource, env string) string {
	parts := []string{keyNamespace, "lock"}
	for _, p := range []string{resource, env} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":")
}

// Ping backs /health/ready.
func (c *Client) Ping(ctx context.Context) error {
	if c.cmds == nil {
		return errNotInitialized
	}
	return c.cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
