package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "BARTER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	EnvAppEnv   = "BARTER_APP_ENV"
	EnvPort     = "BARTER_APP_PORT"
	EnvDBDSN    = "BARTER_DB_DSN"
	EnvDBDriver = "BARTER_DB_DRIVER"
	EnvDBHost   = "BARTER_DB_HOST"
	EnvDBUser   = "BARTER_DB_USER"
	EnvDBName   = "BARTER_DB_NAME"
	EnvRedisURL = "BARTER_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Trades       TradesConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"BARTER_APP_ENV" required:"true"`
	Port         string   `envconfig:"BARTER_APP_PORT" default:"3000"`
	LogLevel     string   `envconfig:"BARTER_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"BARTER_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"BARTER_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BARTER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BARTER_DB_DSN"`
	Driver string `envconfig:"BARTER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BARTER_DB_HOST"`
	LegacyPort     int    `envconfig:"BARTER_DB_PORT"`
	LegacyUser     string `envconfig:"BARTER_DB_USER"`
	LegacyPassword string `envconfig:"BARTER_DB_PASSWORD"`
	LegacyName     string `envconfig:"BARTER_DB_NAME"`
	LegacySSLMode  string `envconfig:"BARTER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BARTER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BARTER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BARTER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BARTER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	TxTimeout       time.Duration `envconfig:"BARTER_DB_TX_TIMEOUT" default:"5s"`
	SlowQuery       time.Duration `envconfig:"BARTER_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BARTER_REDIS_URL"`
	Address      string        `envconfig:"BARTER_REDIS_ADDR"`
	Password     string        `envconfig:"BARTER_REDIS_PASSWORD"`
	DB           int           `envconfig:"BARTER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BARTER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BARTER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BARTER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BARTER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BARTER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BARTER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BARTER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BARTER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BARTER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BARTER_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BARTER_AUTO_MIGRATE" default:"false"`
}

type TradesConfig struct {
	ItemLockTTL time.Duration `envconfig:"BARTER_TRADES_ITEM_LOCK_TTL" default:"30s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BARTER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	TradeEventsTopic string `envconfig:"BARTER_PUBSUB_TRADE_EVENTS_TOPIC" default:"barter-trade-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BARTER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BARTER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BARTER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// TxTimeout bounds one publish batch, broker round trips included. It is
	// separate from BARTER_DB_TX_TIMEOUT, which sizes request transactions.
	TxTimeout time.Duration `envconfig:"BARTER_OUTBOX_TX_TIMEOUT" default:"2m"`
}

func (db *DBConfig) normalize() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case "", "postgresql":
		db.Driver = DriverPostgres
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}
	return db.ensureDSN()
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		db.DSN = "file:barter.db?cache=shared"
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

	if db.Driver == DriverMySQL {
		port := db.LegacyPort
		if port == 0 {
			port = 3306
		}
		db.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			db.LegacyUser, db.LegacyPassword, db.LegacyHost, port, db.LegacyName)
		return nil
	}

	port := db.LegacyPort
	if port == 0 {
		port = 5432
	}
	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, port),
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
