package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Calculation  CalculationConfig
	UsageBilling UsageBillingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ROYALTYWORKS_APP_ENV" required:"true"`
	Port         string `envconfig:"ROYALTYWORKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ROYALTYWORKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ROYALTYWORKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ROYALTYWORKS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ROYALTYWORKS_DB_DSN"`
	Driver string `envconfig:"ROYALTYWORKS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROYALTYWORKS_DB_HOST"`
	LegacyPort     int    `envconfig:"ROYALTYWORKS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROYALTYWORKS_DB_USER"`
	LegacyPassword string `envconfig:"ROYALTYWORKS_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROYALTYWORKS_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROYALTYWORKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROYALTYWORKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROYALTYWORKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROYALTYWORKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROYALTYWORKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ROYALTYWORKS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ROYALTYWORKS_REDIS_ADDR"`
	Password     string        `envconfig:"ROYALTYWORKS_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROYALTYWORKS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROYALTYWORKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROYALTYWORKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROYALTYWORKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROYALTYWORKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROYALTYWORKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ROYALTYWORKS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ROYALTYWORKS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ROYALTYWORKS_JWT_EXPIRATION_MINUTES" required:"true"`
}

// CalculationConfig carries the royalty engine knobs. Thresholds and
// tolerances are integer cents; shares are basis points.
type CalculationConfig struct {
	MinPayoutThresholdCents int64 `envconfig:"ROYALTYWORKS_CALC_MIN_PAYOUT_THRESHOLD_CENTS" default:"2500"`
	// VIPPayoutThresholdCents is reserved for the creator-tier rollout.
	// Until tier data reaches this service, every creator is held to
	// MinPayoutThresholdCents.
	VIPPayoutThresholdCents    int64         `envconfig:"ROYALTYWORKS_CALC_VIP_PAYOUT_THRESHOLD_CENTS" default:"1000"`
	RoundingMethod             string        `envconfig:"ROYALTYWORKS_CALC_ROUNDING_METHOD" default:"bankers"`
	RoundingToleranceCents     int64         `envconfig:"ROYALTYWORKS_CALC_ROUNDING_TOLERANCE_CENTS" default:"100"`
	ProrationEnabled           bool          `envconfig:"ROYALTYWORKS_CALC_PRORATION_ENABLED" default:"true"`
	UsageRevenueEnabled        bool          `envconfig:"ROYALTYWORKS_CALC_USAGE_REVENUE_ENABLED" default:"false"`
	Timeout                    time.Duration `envconfig:"ROYALTYWORKS_CALC_TIMEOUT" default:"10m"`
	AdjustmentApprovalCeiling  int64         `envconfig:"ROYALTYWORKS_CALC_ADJUSTMENT_AUTO_APPROVAL_CENTS" default:"10000"`
	DerivativeSplitsEnabled    bool          `envconfig:"ROYALTYWORKS_CALC_DERIVATIVE_SPLITS_ENABLED" default:"true"`
	DefaultOriginalShareBps    int64         `envconfig:"ROYALTYWORKS_CALC_DEFAULT_ORIGINAL_SHARE_BPS" default:"1500"`
	DisputeResolutionDays      int           `envconfig:"ROYALTYWORKS_CALC_DISPUTE_RESOLUTION_DAYS" default:"30"`
	FiscalYearStartMonth       int           `envconfig:"ROYALTYWORKS_CALC_FISCAL_YEAR_START_MONTH" default:"1"`
	FiscalYearStartDay         int           `envconfig:"ROYALTYWORKS_CALC_FISCAL_YEAR_START_DAY" default:"1"`
	StatementCacheTTL          time.Duration `envconfig:"ROYALTYWORKS_CALC_STATEMENT_CACHE_TTL" default:"15m"`
	UsageRevenueRequestTimeout time.Duration `envconfig:"ROYALTYWORKS_CALC_USAGE_REVENUE_REQUEST_TIMEOUT" default:"10s"`
}

// UsageBillingConfig points at the external usage billing API. BaseURL is
// required once CalculationConfig.UsageRevenueEnabled is set.
type UsageBillingConfig struct {
	BaseURL  string        `envconfig:"ROYALTYWORKS_USAGE_BILLING_BASE_URL"`
	APIToken string        `envconfig:"ROYALTYWORKS_USAGE_BILLING_API_TOKEN"`
	Timeout  time.Duration `envconfig:"ROYALTYWORKS_USAGE_BILLING_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ROYALTYWORKS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ROYALTYWORKS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ROYALTYWORKS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ROYALTYWORKS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ROYALTYWORKS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RoyaltyTopic        string `envconfig:"ROYALTYWORKS_PUBSUB_ROYALTY_TOPIC" required:"true"`
	RoyaltySubscription string `envconfig:"ROYALTYWORKS_PUBSUB_ROYALTY_SUBSCRIPTION" required:"true"`
	StatementTopic      string `envconfig:"ROYALTYWORKS_PUBSUB_STATEMENT_TOPIC" default:"rw-statement-events"`
	StatementSub        string `envconfig:"ROYALTYWORKS_PUBSUB_STATEMENT_SUBSCRIPTION"`
	AuditTopic          string `envconfig:"ROYALTYWORKS_PUBSUB_AUDIT_TOPIC" default:"rw-audit-events"`
	AuditSubscription   string `envconfig:"ROYALTYWORKS_PUBSUB_AUDIT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ROYALTYWORKS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ROYALTYWORKS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ROYALTYWORKS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"ROYALTYWORKS_CRON_INTERVAL" default:"1h"`
	LockTTL               time.Duration `envconfig:"ROYALTYWORKS_CRON_LOCK_TTL" default:"10m"`
	NotificationLookback  time.Duration `envconfig:"ROYALTYWORKS_CRON_NOTIFICATION_LOOKBACK" default:"48h"`
	OutboxRetentionDays   int           `envconfig:"ROYALTYWORKS_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxMinAttemptsKept int           `envconfig:"ROYALTYWORKS_CRON_OUTBOX_MIN_ATTEMPTS_KEPT" default:"3"`
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
