package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Lock     LockConfig
	Retry    RetryConfig
	Services ServicesConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Publish  PublishConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Services.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OFFERS_APP_ENV" required:"true"`
	Port         string `envconfig:"OFFERS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OFFERS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"OFFERS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"OFFERS_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"OFFERS_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"OFFERS_DB_DSN"`
	Driver string `envconfig:"OFFERS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OFFERS_DB_HOST"`
	LegacyPort     int    `envconfig:"OFFERS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OFFERS_DB_USER"`
	LegacyPassword string `envconfig:"OFFERS_DB_PASSWORD"`
	LegacyName     string `envconfig:"OFFERS_DB_NAME"`
	LegacySSLMode  string `envconfig:"OFFERS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OFFERS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OFFERS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OFFERS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OFFERS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"OFFERS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OFFERS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OFFERS_REDIS_ADDR"`
	Password     string        `envconfig:"OFFERS_REDIS_PASSWORD"`
	DB           int           `envconfig:"OFFERS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OFFERS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OFFERS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OFFERS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OFFERS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OFFERS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LockConfig controls the configuration-document mutex.
type LockConfig struct {
	TTL time.Duration `envconfig:"OFFERS_LOCK_TTL" default:"2m"`
}

// RetryConfig carries the two retry profiles. The propagation profile covers
// edge cache propagation, which routinely outlasts a normal request timeout.
type RetryConfig struct {
	ShortAttempts       uint          `envconfig:"OFFERS_RETRY_SHORT_ATTEMPTS" default:"3"`
	ShortDelay          time.Duration `envconfig:"OFFERS_RETRY_SHORT_DELAY" default:"200ms"`
	ShortMaxDelay       time.Duration `envconfig:"OFFERS_RETRY_SHORT_MAX_DELAY" default:"2s"`
	PropagationAttempts uint          `envconfig:"OFFERS_RETRY_PROPAGATION_ATTEMPTS" default:"8"`
	PropagationDelay    time.Duration `envconfig:"OFFERS_RETRY_PROPAGATION_DELAY" default:"2s"`
	PropagationMaxDelay time.Duration `envconfig:"OFFERS_RETRY_PROPAGATION_MAX_DELAY" default:"30s"`
}

type ServicesConfig struct {
	RequestTimeout time.Duration `envconfig:"OFFERS_SERVICES_REQUEST_TIMEOUT" default:"10s"`

	CouponLedgerURL    string `envconfig:"OFFERS_COUPON_LEDGER_URL" required:"true"`
	CouponLedgerAPIKey string `envconfig:"OFFERS_COUPON_LEDGER_API_KEY"`

	ContentStoreURL   string `envconfig:"OFFERS_CONTENT_STORE_URL" required:"true"`
	ContentStoreToken string `envconfig:"OFFERS_CONTENT_STORE_TOKEN"`

	FeatureConfigURL    string `envconfig:"OFFERS_FEATURE_CONFIG_URL" required:"true"`
	FeatureConfigAPIKey string `envconfig:"OFFERS_FEATURE_CONFIG_API_KEY"`

	EdgeGatewayURL    string `envconfig:"OFFERS_EDGE_GATEWAY_URL" required:"true"`
	EdgeGatewayAPIKey string `envconfig:"OFFERS_EDGE_GATEWAY_API_KEY"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"OFFERS_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	ContentCacheTopic string        `envconfig:"OFFERS_PUBSUB_CONTENT_CACHE_TOPIC" default:"offers-content-cache"`
	PublishTimeout    time.Duration `envconfig:"OFFERS_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

type PublishConfig struct {
	Concurrency int    `envconfig:"OFFERS_PUBLISH_CONCURRENCY" default:"4"`
	DefaultActor string `envconfig:"OFFERS_PUBLISH_DEFAULT_ACTOR" default:"offers-publisher"`
}

func (s ServicesConfig) validate() error {
	for env, raw := range map[string]string{
		EnvCouponLedgerURL:  s.CouponLedgerURL,
		EnvContentStoreURL:  s.ContentStoreURL,
		EnvFeatureConfigURL: s.FeatureConfigURL,
		EnvEdgeGatewayURL:   s.EdgeGatewayURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute url", env)
		}
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
