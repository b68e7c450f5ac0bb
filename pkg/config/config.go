package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	Environment     string   `mapstructure:"environment"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogQueries   bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

// AuthConfig describes the external identity provider whose tokens the API accepts.
type AuthConfig struct {
	Issuer       string `mapstructure:"issuer"`
	JWKSURL      string `mapstructure:"jwks_url"`
	Audience     string `mapstructure:"audience"`
	KeyCacheTTL  int    `mapstructure:"key_cache_ttl"` // seconds
	FetchTimeout int    `mapstructure:"fetch_timeout"` // seconds
	Leeway       int    `mapstructure:"leeway"`        // seconds of clock skew tolerated on exp/nbf/iat
}

type JobsConfig struct {
	Workers      int    `mapstructure:"workers"`
	QueueSize    int    `mapstructure:"queue_size"`
	TaskTimeout  int    `mapstructure:"task_timeout"` // seconds
	SyncSchedule string `mapstructure:"sync_schedule"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/scho1ar")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SCHO1AR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(v, &cfg)
	cfg.applyDerived()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scho1ar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "scho1ar")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.log_queries", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.audit_topic", "security.audit")

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.key_cache_ttl", 3600) // 1 hour
	v.SetDefault("auth.fetch_timeout", 10)
	v.SetDefault("auth.leeway", 0)

	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.task_timeout", 900)
	v.SetDefault("jobs.sync_schedule", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "scho1ar-api")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)
}

// overrideFromEnv honours the unprefixed variables used by existing deployments.
func overrideFromEnv(v *viper.Viper, cfg *Config) {
	for _, key := range []string{"DATABASE_URL", "HOST", "PORT", "CORS_ORIGINS", "NODE_ENV",
		"CLERK_ISSUER", "CLERK_JWKS_URL", "CLERK_AUDIENCE"} {
		_ = v.BindEnv("raw."+key, key)
	}

	if url := v.GetString("raw.DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if host := v.GetString("raw.HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := v.GetInt("raw.PORT"); port != 0 {
		cfg.Server.Port = port
	}
	if origins := v.GetString("raw.CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}
	if env := v.GetString("raw.NODE_ENV"); env != "" {
		cfg.Server.Environment = env
	}
	if issuer := v.GetString("raw.CLERK_ISSUER"); issuer != "" {
		cfg.Auth.Issuer = issuer
	}
	if jwksURL := v.GetString("raw.CLERK_JWKS_URL"); jwksURL != "" {
		cfg.Auth.JWKSURL = jwksURL
	}
	if aud := v.GetString("raw.CLERK_AUDIENCE"); aud != "" {
		cfg.Auth.Audience = aud
	}
}

func (c *Config) applyDerived() {
	if c.Auth.JWKSURL == "" && c.Auth.Issuer != "" {
		c.Auth.JWKSURL = strings.TrimSuffix(c.Auth.Issuer, "/") + "/.well-known/jwks.json"
	}
}

// Validate reports configuration the API cannot start without.
func (c *Config) Validate() error {
	if c.Auth.Issuer == "" {
		return errors.New("missing auth issuer (set auth.issuer or CLERK_ISSUER)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c AuthConfig) KeyCacheDuration() time.Duration {
	return time.Duration(c.KeyCacheTTL) * time.Second
}

func (c AuthConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

func (c AuthConfig) LeewayDuration() time.Duration {
	return time.Duration(c.Leeway) * time.Second
}

func (c JobsConfig) TaskTimeoutDuration() time.Duration {
	return time.Duration(c.TaskTimeout) * time.Second
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
