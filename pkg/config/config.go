package config

import (
	"fmt"
	"net/netip"
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
	Identity     IdentityConfig
	Reservation  ReservationConfig
	Catalog      CatalogConfig
	RateLimit    RateLimitConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
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
	if err := cfg.Reservation.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.App.TrustedProxyPrefixes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"NUMBERPOOL_APP_ENV" required:"true"`
	Port           string   `envconfig:"NUMBERPOOL_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"NUMBERPOOL_LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"NUMBERPOOL_LOG_FORMAT" default:"json"`
	LogWarnStack   bool     `envconfig:"NUMBERPOOL_LOG_WARN_STACK" default:"false"`
	LogFile        string   `envconfig:"NUMBERPOOL_LOG_FILE"`
	LogMaxSizeMB   int      `envconfig:"NUMBERPOOL_LOG_MAX_SIZE_MB" default:"100"`
	LogMaxBackups  int      `envconfig:"NUMBERPOOL_LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays  int      `envconfig:"NUMBERPOOL_LOG_MAX_AGE_DAYS" default:"14"`
	LogCompression bool     `envconfig:"NUMBERPOOL_LOG_COMPRESS" default:"true"`
	CORSOrigins    []string `envconfig:"NUMBERPOOL_CORS_ORIGINS" default:"http://localhost:3000"`
	// TrustedProxies lists the addresses or CIDRs whose forwarding headers
	// name the real client. Empty means every peer is the client itself.
	TrustedProxies []string `envconfig:"NUMBERPOOL_TRUSTED_PROXIES"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is treated as a
// single-host prefix.
func (a AppConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(a.TrustedProxies))
	for _, raw := range a.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", EnvTrustedProxies, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTrustedProxies, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type ServiceConfig struct {
	Kind string `envconfig:"NUMBERPOOL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NUMBERPOOL_DB_DSN"`
	Driver string `envconfig:"NUMBERPOOL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NUMBERPOOL_DB_HOST"`
	LegacyPort     int    `envconfig:"NUMBERPOOL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NUMBERPOOL_DB_USER"`
	LegacyPassword string `envconfig:"NUMBERPOOL_DB_PASSWORD"`
	LegacyName     string `envconfig:"NUMBERPOOL_DB_NAME"`
	LegacySSLMode  string `envconfig:"NUMBERPOOL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NUMBERPOOL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NUMBERPOOL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NUMBERPOOL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NUMBERPOOL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"NUMBERPOOL_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"NUMBERPOOL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NUMBERPOOL_REDIS_ADDR"`
	Password     string        `envconfig:"NUMBERPOOL_REDIS_PASSWORD"`
	DB           int           `envconfig:"NUMBERPOOL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NUMBERPOOL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NUMBERPOOL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NUMBERPOOL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NUMBERPOOL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NUMBERPOOL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NUMBERPOOL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NUMBERPOOL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NUMBERPOOL_JWT_EXPIRATION_MINUTES" default:"60"`
}

// IdentityConfig controls how anonymous visitors are mapped to actor ids.
type IdentityConfig struct {
	GuestHashSalt   string        `envconfig:"NUMBERPOOL_GUEST_HASH_SALT" required:"true"`
	GuestSessionTTL time.Duration `envconfig:"NUMBERPOOL_GUEST_SESSION_TTL" default:"48h"`
}

type ReservationConfig struct {
	TimerMinutes   int `envconfig:"NUMBERPOOL_RESERVATION_TIMER_MINUTES" default:"15"`
	SweepBatchSize int `envconfig:"NUMBERPOOL_RESERVATION_SWEEP_BATCH_SIZE" default:"200"`
}

// TimerDuration returns the countdown applied to every blocked reservation.
func (r ReservationConfig) TimerDuration() time.Duration {
	return time.Duration(r.TimerMinutes) * time.Minute
}

func (r ReservationConfig) validate() error {
	if r.TimerMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationTimerMinutes)
	}
	return nil
}

type CatalogConfig struct {
	File string `envconfig:"NUMBERPOOL_CATALOG_FILE"`
}

type RateLimitConfig struct {
	AvailabilityPerSecond float64       `envconfig:"NUMBERPOOL_RATE_LIMIT_AVAILABILITY_RPS" default:"10"`
	AvailabilityBurst     int           `envconfig:"NUMBERPOOL_RATE_LIMIT_AVAILABILITY_BURST" default:"20"`
	ActorWindow           time.Duration `envconfig:"NUMBERPOOL_RATE_LIMIT_ACTOR_WINDOW" default:"1m"`
	ActorLimit            int           `envconfig:"NUMBERPOOL_RATE_LIMIT_ACTOR_LIMIT" default:"300"`
}

type WebhookConfig struct {
	OrdersSecret string `envconfig:"NUMBERPOOL_WEBHOOK_ORDERS_SECRET"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NUMBERPOOL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NUMBERPOOL_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"NUMBERPOOL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	ConsumerLeaseTTL     time.Duration `envconfig:"NUMBERPOOL_EVENTING_LEASE_TTL" default:"2m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NUMBERPOOL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NUMBERPOOL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NUMBERPOOL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReservationTopic   string `envconfig:"NUMBERPOOL_PUBSUB_RESERVATION_TOPIC" default:"np-reservation-events"`
	OrdersTopic        string `envconfig:"NUMBERPOOL_PUBSUB_ORDERS_TOPIC" default:"np-order-events"`
	OrdersSubscription string `envconfig:"NUMBERPOOL_PUBSUB_ORDERS_SUBSCRIPTION" default:"np-order-events-sub"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"NUMBERPOOL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"NUMBERPOOL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"NUMBERPOOL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"NUMBERPOOL_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"NUMBERPOOL_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"NUMBERPOOL_CRON_LOCK_TTL" default:"5m"`
	// RetentionEvery spaces out the outbox retention job; the expiry sweep
	// runs every Interval.
	RetentionEvery time.Duration `envconfig:"NUMBERPOOL_CRON_RETENTION_EVERY" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:numberpool.db?cache=shared"
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
