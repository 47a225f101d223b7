package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PORTAL"

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Notification drivers.
const (
	NotificationDriverSMTP  = "smtp"
	NotificationDriverKafka = "kafka"
	NotificationDriverLog   = "log"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Storage      StorageSettings      `mapstructure:"storage"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	SMTP         SMTPSettings         `mapstructure:"smtp"`
	Notification NotificationSettings `mapstructure:"notification"`
	Moderation   ModerationSettings   `mapstructure:"moderation"`
	Provisioning ProvisioningSettings `mapstructure:"provisioning"`
	Auth         AuthSettings         `mapstructure:"auth"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	Credential   CredentialSettings   `mapstructure:"credential"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageSettings selects the persistence backend.
type StorageSettings struct {
	Driver string `mapstructure:"driver"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	LedgerPrefix string        `mapstructure:"ledger_prefix"`
	LedgerTTL    time.Duration `mapstructure:"ledger_ttl"`
}

// KafkaSettings configures the notification producer and the mailer consumer group.
type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// SMTPSettings configures outbound mail.
type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// NotificationSettings selects how notifications leave the service.
type NotificationSettings struct {
	Driver string `mapstructure:"driver"`
	Topic  string `mapstructure:"topic"`
}

type ModerationSettings struct {
	ReviewAddress string `mapstructure:"review_address"`
}

// ProvisioningSettings configures setup links. The bootstrap admin is created
// on startup when both fields are set and no account holds the username yet.
type ProvisioningSettings struct {
	TokenTTL               time.Duration `mapstructure:"token_ttl"`
	PublicBaseURL          string        `mapstructure:"public_base_url"`
	BootstrapAdminUsername string        `mapstructure:"bootstrap_admin_username"`
	BootstrapAdminEmail    string        `mapstructure:"bootstrap_admin_email"`
}

type AuthSettings struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration    time.Duration `mapstructure:"window_duration"`
	SubmitMaxAttempts int           `mapstructure:"submit_max_attempts"`
	LoginMaxAttempts  int           `mapstructure:"login_max_attempts"`
	SetupMaxAttempts  int           `mapstructure:"setup_max_attempts"`
}

// Argon2Settings configures Argon2id credential hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// CredentialSettings configures the strength policy applied to new credentials.
type CredentialSettings struct {
	MinLength       int `mapstructure:"min_length"`
	MinClasses      int `mapstructure:"min_classes"`
	MinEntropyScore int `mapstructure:"min_entropy_score"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.allowed_origins",
	"storage.driver",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"redis.enabled",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.ledger_prefix",
	"redis.ledger_ttl",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.consumer_group",
	"smtp.host",
	"smtp.port",
	"smtp.username",
	"smtp.password",
	"smtp.from",
	"smtp.from_name",
	"notification.driver",
	"notification.topic",
	"moderation.review_address",
	"provisioning.token_ttl",
	"provisioning.public_base_url",
	"provisioning.bootstrap_admin_username",
	"provisioning.bootstrap_admin_email",
	"auth.jwt_secret",
	"auth.issuer",
	"auth.token_ttl",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.submit_max_attempts",
	"rate_limit.login_max_attempts",
	"rate_limit.setup_max_attempts",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"credential.min_length",
	"credential.min_classes",
	"credential.min_entropy_score",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver))
	}

	switch c.Notification.Driver {
	case NotificationDriverSMTP, NotificationDriverKafka, NotificationDriverLog:
	default:
		errs = append(errs, fmt.Errorf("notification.driver: unsupported value %q", c.Notification.Driver))
	}

	if c.Provisioning.TokenTTL <= 0 {
		errs = append(errs, errors.New("provisioning.token_ttl must be positive"))
	}
	if c.Provisioning.PublicBaseURL == "" {
		errs = append(errs, errors.New("provisioning.public_base_url is required"))
	}
	if c.Moderation.ReviewAddress == "" {
		errs = append(errs, errors.New("moderation.review_address is required"))
	}
	if len(c.Auth.JWTSecret) < 32 && c.App.Env == "production" {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes in production"))
	}

	return errors.Join(errs...)
}

// NotificationTopic returns the fully qualified Kafka topic for notifications.
func (c *AppConfig) NotificationTopic() string {
	if c.Kafka.TopicPrefix == "" {
		return c.Notification.Topic
	}
	return c.Kafka.TopicPrefix + "." + c.Notification.Topic
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "district5b-portal")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("storage.driver", StorageDriverPostgres)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "portal")
	v.SetDefault("postgres.password", "portal_password")
	v.SetDefault("postgres.database", "portal")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.ledger_prefix", "portal:notify")
	v.SetDefault("redis.ledger_ttl", "168h")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "portal")
	v.SetDefault("kafka.consumer_group", "portal-mailer")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 1025)
	v.SetDefault("smtp.from", "no-reply@district5b.org")
	v.SetDefault("smtp.from_name", "District 5B")

	v.SetDefault("notification.driver", NotificationDriverLog)
	v.SetDefault("notification.topic", "notifications")

	v.SetDefault("moderation.review_address", "stories@district5b.org")

	v.SetDefault("provisioning.token_ttl", "24h")
	v.SetDefault("provisioning.public_base_url", "http://localhost:8080")

	v.SetDefault("auth.issuer", "district5b-portal")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "district5b-portal")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.submit_max_attempts", 5)
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.setup_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("credential.min_length", 8)
	v.SetDefault("credential.min_classes", 3)
	v.SetDefault("credential.min_entropy_score", 1)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
