package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/expression"
)

// ConfigFileName is the file searched for when --config is not given.
const ConfigFileName = "ifthen.toml"

// Config is the ifthen.toml file.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Log    LogConfig    `toml:"log"`
	Store  StoreConfig  `toml:"store"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// EngineConfig sizes the driver.
type EngineConfig struct {
	MaxDepth int `toml:"max_depth" validate:"gte=1,lte=4096"`
	Reserve  int `toml:"reserve" validate:"gte=0"`
}

// LogConfig sets the default log level. --verbose overrides it with debug.
type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// StoreConfig names the default trace database for run, replay and trace.
type StoreConfig struct {
	Path string `toml:"path"`
}

var configValidate = validator.New()

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{MaxDepth: expression.DefaultMaxDepth},
		Log:    LogConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults. If path is empty the nearest
// ifthen.toml from the working directory upwards is used; finding none is not
// an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig(".")
		if err != nil {
			return nil, err
		}
		if found == "" {
			return DefaultConfig(), nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// DriverOptions returns the engine options for this config.
func (c *Config) DriverOptions() []engine.DriverOption {
	return []engine.DriverOption{
		engine.WithMaxDepth(c.Engine.MaxDepth),
		engine.WithReserve(c.Engine.Reserve),
	}
}

// LogLevel parses Log.Level. Unknown names fall back to info.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// findConfig walks up from startDir looking for ifthen.toml.
func findConfig(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
