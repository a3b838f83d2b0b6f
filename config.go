package cachez

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// Config holds process-wide settings. Zero fields take their defaults.
type Config struct {
	// PersistFolder overrides ~/.cachez for file-backed persisted functions.
	PersistFolder string `env:"CACHEZ_PERSIST_FOLDER"`

	// DefaultTTL is used when a Period sums to zero.
	DefaultTTL time.Duration `env:"CACHEZ_DEFAULT_TTL" envDefault:"24h"`

	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `env:"CACHEZ_LOG_LEVEL" envDefault:"info"`

	// Compression applies to persisted functions that do not pick their own.
	Compression string `env:"CACHEZ_COMPRESSION" envDefault:"none"`
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultPersistTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Compression == "" {
		c.Compression = string(CompressionNone)
	}
	return c
}

// ConfigFromEnv reads Config from CACHEZ_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("cachez: parse env: %w", err)
	}
	return cfg.withDefaults(), nil
}

var activeCompression atomic.Pointer[Compression]

func defaultCompression() Compression {
	if c := activeCompression.Load(); c != nil {
		return *c
	}
	return CompressionNone
}

// Configure applies cfg to the process. Nothing is changed when cfg is invalid.
func Configure(cfg Config) error {
	cfg = cfg.withDefaults()
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("cachez: log level %q: %w", cfg.LogLevel, err)
	}
	compression := Compression(cfg.Compression)
	if !compression.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedCompression, cfg.Compression)
	}

	SetPersistFolder(cfg.PersistFolder)
	fallbackTTL.Store(int64(cfg.DefaultTTL))
	activeCompression.Store(&compression)
	Logger().SetLevel(level)
	return nil
}
