package cliparse

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Port            int
	DatabaseURL     string
	DatabaseType    string
	LogLevel        string
	LogFile         string
	DefaultTimezone string
	SignalSeed      uint64
	StalePolicy     string
	EventRate       float64
	EventBurst      int
	FixturesPath    string
	EnvFile         string
}

const (
	defaultPort       = 8080
	defaultSQLitePath = "paco.db"
	defaultEventRate  = 1.0
	defaultEventBurst = 10
)

var (
	databaseTypes = []string{"sqlite", "postgres"}
	logLevels     = []string{"debug", "info", "warn", "error"}
	stalePolicies = []string{"retain", "annotate", "reject"}
)

// ParseFlags reads flags, falling back to environment variables (optionally
// loaded from an env file) and then to defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := pflag.NewFlagSet("paco-server", pflag.ContinueOnError)

	// Network and storage
	fs.IntVarP(&cfg.Port, "port", "p", 0, "Server port")
	fs.StringVarP(&cfg.DatabaseURL, "database-url", "d", "", "Database URL (file path for sqlite)")
	fs.StringVarP(&cfg.DatabaseType, "database-type", "t", "", "Database type (sqlite or postgres)")

	// Logging
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Also write JSON logs to this file")

	// Scheduling and events
	fs.StringVar(&cfg.DefaultTimezone, "default-timezone", "", "IANA timezone for subjects that send none")
	fs.Uint64Var(&cfg.SignalSeed, "signal-seed", 0, "Seed for signal times (0 = random)")
	fs.StringVar(&cfg.StalePolicy, "stale-policy", "", "Events against old versions: retain, annotate or reject")
	fs.Float64Var(&cfg.EventRate, "event-rate", 0, "Event submissions per second per subject")
	fs.IntVar(&cfg.EventBurst, "event-burst", 0, "Event submission burst per subject")

	fs.StringVar(&cfg.FixturesPath, "fixtures", "", "YAML file of experiments to seed at startup")
	fs.StringVar(&cfg.EnvFile, "env-file", ".env", "Environment file to load if present")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Existing environment wins over the file
	if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", cfg.EnvFile, err)
	}

	var err error
	if !fs.Changed("port") {
		if cfg.Port, err = envInt("PORT", defaultPort); err != nil {
			return Config{}, err
		}
	}
	if !fs.Changed("database-type") {
		cfg.DatabaseType = envString("DATABASE_TYPE", "sqlite")
	}
	if !slices.Contains(databaseTypes, cfg.DatabaseType) {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}
	if !fs.Changed("database-url") {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseType == "postgres" {
			return Config{}, errors.New("database URL required for postgres (use -d or DATABASE_URL env)")
		}
		cfg.DatabaseURL = defaultSQLitePath
	}

	if !fs.Changed("log-level") {
		cfg.LogLevel = envString("LOG_LEVEL", "info")
	}
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return Config{}, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if !fs.Changed("log-file") {
		cfg.LogFile = os.Getenv("LOG_FILE")
	}

	if !fs.Changed("default-timezone") {
		cfg.DefaultTimezone = envString("DEFAULT_TIMEZONE", "UTC")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid default timezone %q: %w", cfg.DefaultTimezone, err)
	}

	if !fs.Changed("signal-seed") {
		if s := os.Getenv("SIGNAL_SEED"); s != "" {
			if cfg.SignalSeed, err = strconv.ParseUint(s, 10, 64); err != nil {
				return Config{}, errors.New("invalid SIGNAL_SEED env variable")
			}
		}
	}

	if !fs.Changed("stale-policy") {
		cfg.StalePolicy = envString("STALE_POLICY", "retain")
	}
	if !slices.Contains(stalePolicies, cfg.StalePolicy) {
		return Config{}, fmt.Errorf("invalid stale policy %q", cfg.StalePolicy)
	}

	if !fs.Changed("event-rate") {
		cfg.EventRate = defaultEventRate
		if s := os.Getenv("EVENT_RATE"); s != "" {
			if cfg.EventRate, err = strconv.ParseFloat(s, 64); err != nil {
				return Config{}, errors.New("invalid EVENT_RATE env variable")
			}
		}
	}
	if cfg.EventRate <= 0 {
		return Config{}, errors.New("event rate must be positive")
	}
	if !fs.Changed("event-burst") {
		if cfg.EventBurst, err = envInt("EVENT_BURST", defaultEventBurst); err != nil {
			return Config{}, err
		}
	}
	if cfg.EventBurst < 1 {
		return Config{}, errors.New("event burst must be at least 1")
	}

	if !fs.Changed("fixtures") {
		cfg.FixturesPath = os.Getenv("FIXTURES_PATH")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}
