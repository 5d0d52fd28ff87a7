package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Store        StoreConfig
	DB           DBConfig
	Redis        RedisConfig
	Remote       RemoteConfig
	Sync         SyncConfig
	Transmission TransmissionConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Backend      BackendConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if err := cfg.DB.ensureDSN(cfg.Store.Driver); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FIELDSYNC_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"FIELDSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FIELDSYNC_LOG_WARN_STACK" default:"false"`
	DeviceID     string `envconfig:"FIELDSYNC_DEVICE_ID"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig selects the LocalStore implementation once at startup.
type StoreConfig struct {
	Driver string `envconfig:"FIELDSYNC_STORE_DRIVER" default:"sqlite"`
}

func (s StoreConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StoreDriverSQLite, StoreDriverPostgres, StoreDriverRedis:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s, %s", EnvStoreDriver, StoreDriverSQLite, StoreDriverPostgres, StoreDriverRedis)
}

// IsSQL reports whether the configured driver is backed by gorm.
func (s StoreConfig) IsSQL() bool {
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	return d == StoreDriverSQLite || d == StoreDriverPostgres
}

type DBConfig struct {
	DSN        string `envconfig:"FIELDSYNC_DB_DSN"`
	Driver     string `envconfig:"FIELDSYNC_DB_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"FIELDSYNC_SQLITE_PATH" default:"fieldsync.db"`

	MaxOpenConns    int           `envconfig:"FIELDSYNC_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"FIELDSYNC_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"FIELDSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FIELDSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FIELDSYNC_REDIS_URL"`
	Address      string        `envconfig:"FIELDSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"FIELDSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"FIELDSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FIELDSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FIELDSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FIELDSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FIELDSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FIELDSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type RemoteConfig struct {
	BaseURL        string        `envconfig:"FIELDSYNC_REMOTE_BASE_URL" default:"http://localhost:8080"`
	RequestTimeout time.Duration `envconfig:"FIELDSYNC_REMOTE_TIMEOUT" default:"30s"`
	HealthTimeout  time.Duration `envconfig:"FIELDSYNC_REMOTE_HEALTH_TIMEOUT" default:"3s"`
}

type SyncConfig struct {
	LockTTL       time.Duration `envconfig:"FIELDSYNC_SYNC_LOCK_TTL" default:"10m"`
	FetchTimeout  time.Duration `envconfig:"FIELDSYNC_SYNC_FETCH_TIMEOUT" default:"2m"`
	DistributedLk bool          `envconfig:"FIELDSYNC_SYNC_DISTRIBUTED_LOCK" default:"false"`
}

type TransmissionConfig struct {
	BatchTimeout time.Duration `envconfig:"FIELDSYNC_TRANSMIT_TIMEOUT" default:"1m"`
	AuditBuffer  int           `envconfig:"FIELDSYNC_AUDIT_BUFFER" default:"256"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FIELDSYNC_JWT_SECRET"`
	Issuer            string `envconfig:"FIELDSYNC_JWT_ISSUER" default:"fieldsync"`
	ExpirationMinutes int    `envconfig:"FIELDSYNC_JWT_EXPIRATION_MINUTES" default:"720"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FIELDSYNC_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FIELDSYNC_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FIELDSYNC_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FIELDSYNC_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FIELDSYNC_ARGON_KEY_LEN" default:"32"`
}

// BackendConfig drives the reference remote service in cmd/api.
type BackendConfig struct {
	Port           string        `envconfig:"FIELDSYNC_BACKEND_PORT" default:"8080"`
	FixturePath    string        `envconfig:"FIELDSYNC_BACKEND_FIXTURE" default:"fixtures/dataset.json"`
	IdempotencyTTL time.Duration `envconfig:"FIELDSYNC_BACKEND_IDEMPOTENCY_TTL" default:"720h"`

	// Login throttling needs redis; zero limits disable a scope.
	LoginWindow   time.Duration `envconfig:"FIELDSYNC_BACKEND_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit  int           `envconfig:"FIELDSYNC_BACKEND_LOGIN_IP_LIMIT" default:"30"`
	LoginRepLimit int           `envconfig:"FIELDSYNC_BACKEND_LOGIN_REP_LIMIT" default:"10"`

	CORSOrigins []string `envconfig:"FIELDSYNC_BACKEND_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN(storeDriver string) error {
	driver := strings.ToLower(strings.TrimSpace(storeDriver))
	if driver == StoreDriverRedis {
		return nil
	}
	db.Driver = driver
	if db.DSN != "" {
		return nil
	}
	switch driver {
	case StoreDriverSQLite:
		if db.SQLitePath == "" {
			return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvSQLitePath)
		}
		db.DSN = fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", db.SQLitePath)
		return nil
	case StoreDriverPostgres:
		return fmt.Errorf("%s is required for the %s driver", EnvDBDSN, StoreDriverPostgres)
	}
	return fmt.Errorf("unsupported db driver %q", driver)
}
