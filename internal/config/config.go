package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full runtime configuration. Values come from an optional
// YAML file overridden by UPLITE_* environment variables.
type Config struct {
	Addr   string `yaml:"addr" env:"UPLITE_ADDR" env-default:"127.0.0.1:8080"`
	LogDir string `yaml:"log_dir" env:"UPLITE_LOG_DIR" env-default:"logs"`
	Debug  bool   `yaml:"debug" env:"UPLITE_DEBUG" env-default:"false"`

	// Store selects the persistence backend: sqlite, postgres or memory.
	Store       string `yaml:"store" env:"UPLITE_STORE" env-default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" env:"UPLITE_SQLITE_PATH" env-default:"data/uplite.db"`
	DatabaseURL string `yaml:"database_url" env:"UPLITE_DATABASE_URL" env-default:""`

	CheckInterval       time.Duration `yaml:"check_interval" env:"UPLITE_CHECK_INTERVAL" env-default:"60s"`
	CycleRetryDelay     time.Duration `yaml:"cycle_retry_delay" env:"UPLITE_CYCLE_RETRY_DELAY" env-default:"10s"`
	MaxConcurrentChecks int           `yaml:"max_concurrent_checks" env:"UPLITE_MAX_CONCURRENT_CHECKS" env-default:"8"`

	Retention     time.Duration `yaml:"retention" env:"UPLITE_RETENTION" env-default:"168h"`
	SweepSchedule string        `yaml:"sweep_schedule" env:"UPLITE_SWEEP_SCHEDULE" env-default:"@hourly"`
}

// Load reads the optional config file at path, then applies environment
// overrides. An empty or missing path means environment-only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown store %q (want sqlite, postgres or memory)", c.Store)
	}
	if c.Store == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("store is postgres but UPLITE_DATABASE_URL is empty")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("max concurrent checks must be at least 1, got %d", c.MaxConcurrentChecks)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	}
	return nil
}
