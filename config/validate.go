package config

import (
	"fmt"
	"time"
)

// Validate checks the loaded configuration and resolves derived fields.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535 (got %d)", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres (got %q)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if err := c.Rollover.validate(); err != nil {
		return fmt.Errorf("rollover: %w", err)
	}

	loc, err := time.LoadLocation(c.Rent.Timezone)
	if err != nil {
		return fmt.Errorf("rent.timezone: %w", err)
	}
	c.Rent.Location = loc

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

func (r *RolloverConfig) validate() error {
	// Day 29-31 would skip short months entirely.
	if r.Day < 1 || r.Day > 28 {
		return fmt.Errorf("day must be 1-28 (got %d)", r.Day)
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour must be 0-23 (got %d)", r.Hour)
	}
	if r.ReconcileHour < 0 || r.ReconcileHour > 23 {
		return fmt.Errorf("reconcile_hour must be 0-23 (got %d)", r.ReconcileHour)
	}
	if r.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be > 0 (got %s)", r.CheckInterval)
	}
	return nil
}
