package config

import (
	"github.com/scho1ar-go/pkg/auth/jwks"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/events"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/telemetry"
)

func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

func (c DatabaseConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		DSN:          c.DSN(),
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		LogQueries:   c.LogQueries,
	}
}

func (c KafkaConfig) ToKafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: c.Brokers,
		Topic:   c.AuditTopic,
	}
}

func (c AuthConfig) ToVerifierConfig() jwks.VerifierConfig {
	return jwks.VerifierConfig{
		Issuer:   c.Issuer,
		Audience: c.Audience,
		Leeway:   c.LeewayDuration(),
	}
}

// ToTelemetryConfig needs the server environment, so it hangs off Config.
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Telemetry.Enabled,
		JaegerURL:    c.Telemetry.JaegerURL,
		ServiceName:  c.Telemetry.ServiceName,
		Environment:  c.Server.Environment,
		SamplingRate: c.Telemetry.SamplingRate,
	}
}
