package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "cratebox"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CRATEBOX_DB_DSN"
	EnvDBHost = "CRATEBOX_DB_HOST"
	EnvDBUser = "CRATEBOX_DB_USER"
	EnvDBName = "CRATEBOX_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Batch        BatchConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"CRATEBOX_APP_ENV" required:"true"`
	Port         string `envconfig:"CRATEBOX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CRATEBOX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRATEBOX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CRATEBOX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CRATEBOX_DB_DSN"`
	Driver string `envconfig:"CRATEBOX_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CRATEBOX_DB_HOST"`
	Port     int    `envconfig:"CRATEBOX_DB_PORT" default:"5432"`
	User     string `envconfig:"CRATEBOX_DB_USER"`
	Password string `envconfig:"CRATEBOX_DB_PASSWORD"`
	Name     string `envconfig:"CRATEBOX_DB_NAME"`
	SSLMode  string `envconfig:"CRATEBOX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CRATEBOX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRATEBOX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRATEBOX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRATEBOX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CRATEBOX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CRATEBOX_REDIS_ADDR"`
	Password     string        `envconfig:"CRATEBOX_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRATEBOX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRATEBOX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRATEBOX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRATEBOX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRATEBOX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRATEBOX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CRATEBOX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CRATEBOX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CRATEBOX_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTTLHours   int    `envconfig:"CRATEBOX_JWT_REFRESH_TTL_HOURS" default:"720"`
}

func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTTLHours) * time.Hour
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CRATEBOX_AUTO_MIGRATE" default:"false"`
}

// BatchConfig tunes the cycle order generator.
type BatchConfig struct {
	PageSize       int           `envconfig:"CRATEBOX_BATCH_PAGE_SIZE" default:"200"`
	WorkerInterval time.Duration `envconfig:"CRATEBOX_CYCLE_WORKER_INTERVAL" default:"1h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CRATEBOX_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CRATEBOX_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CRATEBOX_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CRATEBOX_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"CRATEBOX_PUBSUB_NOTIFICATION_TOPIC" default:"cratebox-notification-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
