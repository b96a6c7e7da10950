package taxonrepo

import (
	"time"

	"github.com/orchidarium/go-taxon-repository/hierarchy"
	"github.com/orchidarium/go-taxon-repository/snapshot"
)

// Config holds the tunables for one repository facade.
type Config struct {
	// TTL bounds the age of the collection snapshot. Must be greater
	// than 0.
	TTL time.Duration

	// NameLimit bounds entity name length during validation. Must be
	// greater than 0.
	NameLimit int

	// BackoffBase is the wait after the first failed refresh attempt.
	// Each further consecutive failure doubles it.
	BackoffBase time.Duration

	// BackoffMax caps the refresh backoff interval.
	BackoffMax time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:         snapshot.DefaultTTL,
		NameLimit:   hierarchy.DefaultNameLimit,
		BackoffBase: 2 * time.Second,
		BackoffMax:  2 * time.Minute,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.NameLimit <= 0 {
		return &ConfigError{Field: "NameLimit", Message: "must be greater than 0"}
	}
	if c.BackoffBase <= 0 {
		return &ConfigError{Field: "BackoffBase", Message: "must be greater than 0"}
	}
	if c.BackoffMax < c.BackoffBase {
		return &ConfigError{Field: "BackoffMax", Message: "must be at least BackoffBase"}
	}
	return nil
}

// ConfigError represents a configuration or wiring error raised at
// construction time.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
