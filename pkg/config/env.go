package config

// envconfig uses explicit tags, so the prefix only matters for unset fields.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

const (
	EnvAppEnv       = "FIELDSYNC_APP_ENV"
	EnvLogLevel     = "FIELDSYNC_LOG_LEVEL"
	EnvStoreDriver  = "FIELDSYNC_STORE_DRIVER"
	EnvDBDSN        = "FIELDSYNC_DB_DSN"
	EnvSQLitePath   = "FIELDSYNC_SQLITE_PATH"
	EnvRedisURL     = "FIELDSYNC_REDIS_URL"
	EnvRemoteURL    = "FIELDSYNC_REMOTE_BASE_URL"
	EnvJWTSecret    = "FIELDSYNC_JWT_SECRET"
	EnvSyncLockTTL  = "FIELDSYNC_SYNC_LOCK_TTL"
	EnvBackendPort  = "FIELDSYNC_BACKEND_PORT"
	EnvFixturePath  = "FIELDSYNC_BACKEND_FIXTURE"
	EnvAuditBuffer  = "FIELDSYNC_AUDIT_BUFFER"
	EnvTransmitTime = "FIELDSYNC_TRANSMIT_TIMEOUT"
)
