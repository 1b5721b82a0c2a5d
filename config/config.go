// Package config loads the rent-ledger server configuration.
package config

import (
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Rollover RolloverConfig `yaml:"rollover"`
	Rent     RentConfig     `yaml:"rent"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  string        `yaml:"allowed_origins"  env:"CORS_ALLOWED_ORIGINS"    env-default:"*"`
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite3"`
	DSN    string `yaml:"dsn"    env:"DATABASE_DSN"    env-default:"./data/rent.db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	Output string `yaml:"output" env:"LOG_OUTPUT" env-default:"stdout"`
}

// RolloverConfig schedules the monthly rollover and the daily reconcile.
// The defaults mirror "02:00 on the 2nd" and "midnight daily".
// Enabled can only be switched off through ROLLOVER_ENABLED=false; a YAML
// false is indistinguishable from unset and gets the default.
type RolloverConfig struct {
	Enabled       bool          `yaml:"enabled"        env:"ROLLOVER_ENABLED"        env-default:"true"`
	Day           int           `yaml:"day"            env:"ROLLOVER_DAY"            env-default:"2"`
	Hour          int           `yaml:"hour"           env:"ROLLOVER_HOUR"           env-default:"2"`
	ReconcileHour int           `yaml:"reconcile_hour" env:"ROLLOVER_RECONCILE_HOUR" env-default:"0"`
	CheckInterval time.Duration `yaml:"check_interval" env:"ROLLOVER_CHECK_INTERVAL" env-default:"1m"`
}

// RentConfig holds calendar and display settings for balances.
type RentConfig struct {
	Timezone string `yaml:"timezone" env:"RENT_TIMEZONE" env-default:"UTC"`
	Currency string `yaml:"currency" env:"RENT_CURRENCY" env-default:"Ksh"`

	// Location is resolved from Timezone by Validate.
	Location *time.Location `yaml:"-"`
}

// KafkaConfig enables event publishing.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
}
