package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

// masterKeyEnvVar is the fallback source of keyring material when no key
// file is configured.
const masterKeyEnvVar = "CUSTODY_MASTER_KEY"

// Config holds every runtime knob of the custody service. Values come from
// the environment; defaults suit local development.
type Config struct {
	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"8080"`

	DatabaseFile string `env:"CUSTODY_DATABASE_FILE" envDefault:"custody.db"`

	// Master key material for the at-rest keyring. A file path wins over the
	// inline CUSTODY_MASTER_KEY value; at least one must be set.
	MasterKeyPath string `env:"CUSTODY_MASTER_KEY_PATH"`

	// Shared secret for relay bearer tokens (HS256).
	JWTSecret string `env:"CUSTODY_JWT_SECRET"`

	SessionTTL time.Duration `env:"CUSTODY_SESSION_TTL" envDefault:"30s"`
	LeaseTTL   time.Duration `env:"CUSTODY_LEASE_TTL" envDefault:"45s"`
	PendingTTL time.Duration `env:"CUSTODY_PENDING_TTL" envDefault:"10m"`
	StagedTTL  time.Duration `env:"CUSTODY_STAGED_TTL" envDefault:"10m"`

	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1m"`
}

// LoadConfig parses the environment into a Config and validates the
// secrets that have no safe default.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.MasterKeyPath == "" && os.Getenv(masterKeyEnvVar) == "" {
		return Config{}, errors.New("CUSTODY_MASTER_KEY_PATH or CUSTODY_MASTER_KEY must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("CUSTODY_JWT_SECRET must be set")
	}

	return cfg, nil
}
