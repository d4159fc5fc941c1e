package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every MapleCart service.
const EnvPrefix = "maplecart"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv    = "MAPLECART_APP_ENV"
	EnvPort      = "MAPLECART_APP_PORT"
	EnvDBDSN     = "MAPLECART_DB_DSN"
	EnvDBHost    = "MAPLECART_DB_HOST"
	EnvDBUser    = "MAPLECART_DB_USER"
	EnvDBName    = "MAPLECART_DB_NAME"
	EnvRedisURL  = "MAPLECART_REDIS_URL"
	EnvJWTSecret = "MAPLECART_JWT_SECRET"
	EnvJWTIssuer = "MAPLECART_JWT_ISSUER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Query        QueryConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"MAPLECART_APP_ENV" required:"true"`
	Port         string `envconfig:"MAPLECART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAPLECART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAPLECART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MAPLECART_DB_DSN"`
	Driver string `envconfig:"MAPLECART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAPLECART_DB_HOST"`
	LegacyPort     int    `envconfig:"MAPLECART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAPLECART_DB_USER"`
	LegacyPassword string `envconfig:"MAPLECART_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAPLECART_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAPLECART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAPLECART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAPLECART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAPLECART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAPLECART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAPLECART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAPLECART_REDIS_ADDR"`
	Password     string        `envconfig:"MAPLECART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAPLECART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAPLECART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAPLECART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAPLECART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAPLECART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAPLECART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAPLECART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAPLECART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAPLECART_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MAPLECART_AUTO_MIGRATE" default:"false"`
}

// QueryConfig tunes the read-side projections. Storefront list reads may be
// served from cache up to ListCacheTTL stale; single-variant reads always hit
// the database so checkout sees fresh counters.
type QueryConfig struct {
	ListCacheTTL time.Duration `envconfig:"MAPLECART_QUERY_LIST_CACHE_TTL" default:"30s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MAPLECART_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MAPLECART_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"MAPLECART_PUBSUB_INVENTORY_TOPIC" default:"mc-inventory-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MAPLECART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MAPLECART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MAPLECART_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
