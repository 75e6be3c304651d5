package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/validator"
)

type APIKeyPermissions struct {
	AccountManagement bool `mapstructure:"account_management" json:"account_management"`
	CrashAccess       bool `mapstructure:"crash_access"       json:"crash_access"`
}

type APIKey struct {
	Active      *bool             `mapstructure:"active"      json:"active"      validate:"required"`
	Token       string            `mapstructure:"token"       json:"token"       validate:"required"`
	Permissions APIKeyPermissions `mapstructure:"permissions" json:"permissions"`
}

// Operator credentials for the account management surface
type Admin struct {
	ID     string `mapstructure:"id"      json:"id"      validate:"required,uuid_rfc4122"`
	Note   string `mapstructure:"note"    json:"note"    validate:"required"`
	APIKey APIKey `mapstructure:"api_key" json:"api_key" validate:"required"`
}

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

// One location per artifact class
type StorageRoots struct {
	Crash    string `mapstructure:"crash"    validate:"required"`
	Fuzzer   string `mapstructure:"fuzzer"   validate:"required"`
	Testcase string `mapstructure:"testcase" validate:"required"`
	Image    string `mapstructure:"image"    validate:"required"`
}

type FilesystemStorageConfig struct {
	BasePath string `mapstructure:"base_path" validate:"required"`
}

type AzureStorageConfig struct {
	Name       string `mapstructure:"name"        validate:"required"`
	Key        string `mapstructure:"key"         validate:"required"`
	ServiceURL string `mapstructure:"service_url" validate:"required"`
}

type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"          validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"     validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type StorageConfig struct {
	// filesystem, azure or s3
	Backend    string                   `mapstructure:"backend"    validate:"required,oneof=filesystem azure s3"`
	Roots      *StorageRoots            `mapstructure:"roots"      validate:"required"`
	Filesystem *FilesystemStorageConfig `mapstructure:"filesystem" validate:"required_if=Backend filesystem"`
	Azure      *AzureStorageConfig      `mapstructure:"azure"      validate:"required_if=Backend azure"`
	S3         *S3StorageConfig         `mapstructure:"s3"         validate:"required_if=Backend s3"`
	// Wrap every backend in exponential backoff. Off by default so a failing write surfaces quickly
	Retry bool `mapstructure:"retry"`
}

type SecretConfig struct {
	ServerKey string `mapstructure:"server_key" validate:"required,min=16"`
	// Write channel credentials with the zero IV CBC format older deployments used
	LegacyWrites bool `mapstructure:"legacy_writes"`
}

type IngestConfig struct {
	// raw or stack
	Normalizer       string `mapstructure:"normalizer"         validate:"required,oneof=raw stack"`
	ExcerptLength    int    `mapstructure:"excerpt_length"     validate:"required,min=1"`
	MaxArtifactBytes int    `mapstructure:"max_artifact_bytes" validate:"required,min=1"`
	// Lock stripes guarding lookup-or-create per (owner, fingerprint)
	LockStripes int `mapstructure:"lock_stripes" validate:"required,min=1"`
}

type AzureQueueConfig struct {
	Name       string `mapstructure:"name"        validate:"required"`
	Key        string `mapstructure:"key"         validate:"required"`
	ServiceURL string `mapstructure:"service_url" validate:"required"`
	Queue      string `mapstructure:"queue"       validate:"required"`
}

type SMTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`
	// Skip TLS for local relays
	Insecure bool `mapstructure:"insecure"`
}

type TelegramConfig struct {
	APIURL         string        `mapstructure:"api_url"          validate:"required,url"`
	MessagesPerSec float64       `mapstructure:"messages_per_sec" validate:"required,gt=0"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"required"`
}

type NotifyConfig struct {
	// memory or azure
	Queue           string            `mapstructure:"queue"             validate:"required,oneof=memory azure"`
	QueueSize       int               `mapstructure:"queue_size"        validate:"required,min=1"`
	Workers         int               `mapstructure:"workers"           validate:"required,min=1"`
	HandlerTimeout  time.Duration     `mapstructure:"handler_timeout"   validate:"required"`
	ProfileCacheTTL time.Duration     `mapstructure:"profile_cache_ttl"`
	Azure           *AzureQueueConfig `mapstructure:"azure"             validate:"required_if=Queue azure"`
	// Run the consumers in this process. Turn off on API only replicas of an azure backed queue
	Consume bool `mapstructure:"consume"`
	SMTP            *SMTPConfig       `mapstructure:"smtp"              validate:"required"`
	Telegram        *TelegramConfig   `mapstructure:"telegram"          validate:"required"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

type RateLimitConfig struct {
	RedisHost       string `mapstructure:"redis_host"`
	GlobalPerMinute int64  `mapstructure:"global_per_minute"`
	SubmitPerMinute int64  `mapstructure:"submit_per_minute"`
	FailOpen        bool   `mapstructure:"fail_open"`
	// Machine registration is limited per client ip in process, redis is not involved
	RegisterPerMinute int64 `mapstructure:"register_per_minute"`
}

type DownloadConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"required"`
}

// See triageapi.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig  `mapstructure:"postgres"               validate:"required"`
	Storage              *StorageConfig   `mapstructure:"storage"                validate:"required"`
	Secret               *SecretConfig    `mapstructure:"secret"                 validate:"required"`
	Ingest               *IngestConfig    `mapstructure:"ingest"                 validate:"required"`
	Notify               *NotifyConfig    `mapstructure:"notify"                 validate:"required"`
	Download             *DownloadConfig  `mapstructure:"download"               validate:"required"`
	Logging              *LoggingConfig   `mapstructure:"logging"                validate:"required"`
	RateLimit            *RateLimitConfig `mapstructure:"ratelimit"`
	ListenAddress        string           `mapstructure:"listen_address"         validate:"required"`
	Admins               []Admin          `mapstructure:"admins"`
	GracefulShutdownSecs int64            `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel                string = "logging.app.level"
	DownloadTokenTTL           string = "download.token_ttl"
	EnvPrefix                  string = "triageapi"
	GlobalPerMinute            string = "ratelimit.global_per_minute"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	IngestExcerptLength        string = "ingest.excerpt_length"
	IngestLockStripes          string = "ingest.lock_stripes"
	IngestMaxArtifactBytes     string = "ingest.max_artifact_bytes"
	IngestNormalizer           string = "ingest.normalizer"
	ListenAddress              string = "listen_address"
	NotifyAzureKey             string = "notify.azure.key"
	NotifyConsume              string = "notify.consume"
	NotifyHandlerTimeout       string = "notify.handler_timeout"
	NotifyProfileCacheTTL      string = "notify.profile_cache_ttl"
	NotifyQueue                string = "notify.queue"
	NotifyQueueSize            string = "notify.queue_size"
	NotifySMTPTimeout          string = "notify.smtp.timeout"
	NotifyTelegramAPIURL       string = "notify.telegram.api_url"
	NotifyTelegramRate         string = "notify.telegram.messages_per_sec"
	NotifyTelegramTimeout      string = "notify.telegram.timeout"
	NotifyWorkers              string = "notify.workers"
	PostgresConnectonTTL       string = "postgres.connection_ttl"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RegisterPerMinute          string = "ratelimit.register_per_minute"
	RedisHost                  string = "ratelimit.redis_host"
	S3AccessKeyID              string = "storage.s3.access_key_id"
	S3SecretAccessKey          string = "storage.s3.secret_access_key" // #nosec
	SecretLegacyWrites         string = "secret.legacy_writes"
	SecretServerKey            string = "secret.server_key" // #nosec
	StorageAzureKey            string = "storage.azure.key"
	StorageBackend             string = "storage.backend"
	StorageBasePath            string = "storage.filesystem.base_path"
	StorageRetry               string = "storage.retry"
	StorageRootCrash           string = "storage.roots.crash"
	StorageRootFuzzer          string = "storage.roots.fuzzer"
	StorageRootImage           string = "storage.roots.image"
	StorageRootTestcase        string = "storage.roots.testcase"
	UseOTLP                    string = "logging.use_otlp"
	SubmitPerMinute            string = "ratelimit.submit_per_minute"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("triageapi")

	v.AddConfigPath("/etc/triageapi/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	if err := load(v); err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

func load(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{
		PostgresPassword,
		SecretServerKey,
		StorageAzureKey,
		S3AccessKeyID,
		S3SecretAccessKey,
		NotifyAzureKey,
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return err
	}

	valid := validator.Create()
	return valid.Validate(&config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectonTTL, 10*time.Minute)
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(UseOTLP, false)

	v.SetDefault(StorageBackend, "filesystem")
	v.SetDefault(StorageBasePath, "/var/lib/triageapi")
	v.SetDefault(StorageRootCrash, "crash")
	v.SetDefault(StorageRootFuzzer, "fuzzer")
	v.SetDefault(StorageRootTestcase, "testcase")
	v.SetDefault(StorageRootImage, "profile")
	v.SetDefault(StorageRetry, false)

	v.SetDefault(SecretLegacyWrites, false)

	v.SetDefault(IngestNormalizer, "stack")
	v.SetDefault(IngestExcerptLength, 512)
	v.SetDefault(IngestMaxArtifactBytes, validator.MaxArtifactBytes)
	v.SetDefault(IngestLockStripes, 256)

	v.SetDefault(NotifyQueue, "memory")
	v.SetDefault(NotifyQueueSize, 1024)
	v.SetDefault(NotifyWorkers, 4)
	v.SetDefault(NotifyConsume, true)
	v.SetDefault(NotifyHandlerTimeout, 30*time.Second)
	v.SetDefault(NotifyProfileCacheTTL, time.Minute)
	v.SetDefault(NotifySMTPTimeout, 15*time.Second)
	v.SetDefault(NotifyTelegramAPIURL, "https://api.telegram.org")
	v.SetDefault(NotifyTelegramRate, 1.0)
	v.SetDefault(NotifyTelegramTimeout, 10*time.Second)

	v.SetDefault(DownloadTokenTTL, 10*time.Minute)

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(GlobalPerMinute, 0)
	v.SetDefault(SubmitPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)
	v.SetDefault(RegisterPerMinute, 10)

	v.SetDefault(GracefulShutdownSecs, 30)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
	)
}
