// Package config provides configuration management for procurevoice
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/normanking/procurevoice/internal/intent"
	"github.com/normanking/procurevoice/internal/lang"
)

// EnvPrefix prefixes environment overrides, e.g. PROCUREVOICE_SERVER_ADDR.
const EnvPrefix = "PROCUREVOICE"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Intent   IntentConfig   `mapstructure:"intent"`
	Training TrainingConfig `mapstructure:"training"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the portal HTTP server
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"` // empty allows same-origin only
}

// SpeechConfig configures speech input and output
type SpeechConfig struct {
	Language    string        `mapstructure:"language"` // en-IN or hi-IN
	Sound       bool          `mapstructure:"sound"`
	Engine      string        `mapstructure:"engine"` // log or say, for the local CLI
	Rate        float64       `mapstructure:"rate"`
	Pitch       float64       `mapstructure:"pitch"`
	Volume      float64       `mapstructure:"volume"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	WordPace    time.Duration `mapstructure:"word_pace"` // log engine reading pace
	FillerWords []string      `mapstructure:"filler_words"`
}

// IntentConfig configures reply resolution
type IntentConfig struct {
	Seed                int64         `mapstructure:"seed"` // 0 seeds from the clock
	GeneratorURL        string        `mapstructure:"generator_url"`
	GeneratorAPIKey     string        `mapstructure:"generator_api_key"`
	GeneratorTimeout    time.Duration `mapstructure:"generator_timeout"`
	GeneratorCategories []string      `mapstructure:"generator_categories"`
}

// TrainingConfig locates the optional training data
type TrainingConfig struct {
	URL     string        `mapstructure:"url"`
	File    string        `mapstructure:"file"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig configures the transcript archive
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Speech: SpeechConfig{
			Language:    string(lang.Default),
			Sound:       true,
			Engine:      "log",
			Rate:        1.0,
			Pitch:       1.0,
			Volume:      1.0,
			SettleDelay: 150 * time.Millisecond,
		},
		Intent: IntentConfig{
			GeneratorTimeout:    4 * time.Second,
			GeneratorCategories: []string{string(intent.CategoryAutoReply)},
		},
		Training: TrainingConfig{
			Timeout: 5 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "procurevoice.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	var errs []error
	if _, err := lang.Parse(c.Speech.Language); err != nil {
		errs = append(errs, fmt.Errorf("speech.language: %w", err))
	}
	switch c.Speech.Engine {
	case "log", "say":
	default:
		errs = append(errs, fmt.Errorf("speech.engine: unknown engine %q", c.Speech.Engine))
	}
	if c.Speech.Rate <= 0 || c.Speech.Pitch <= 0 || c.Speech.Volume < 0 || c.Speech.Volume > 1 {
		errs = append(errs, errors.New("speech: rate and pitch must be positive, volume within 0..1"))
	}
	if c.Speech.SettleDelay < 0 || c.Speech.SettleDelay > time.Second {
		errs = append(errs, errors.New("speech.settle_delay must be between 0 and 1s"))
	}
	for _, cat := range c.Intent.GeneratorCategories {
		switch intent.Category(cat) {
		case intent.CategoryGeneral, intent.CategoryAutoReply:
		default:
			errs = append(errs, fmt.Errorf("intent.generator_categories: unknown category %q", cat))
		}
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, errors.New("archive.path is required when the archive is enabled"))
	}
	return errors.Join(errs...)
}

// Categories returns the generator categories as typed values
func (c IntentConfig) Categories() []intent.Category {
	out := make([]intent.Category, 0, len(c.GeneratorCategories))
	for _, cat := range c.GeneratorCategories {
		out = append(out, intent.Category(cat))
	}
	return out
}

// Loader reads configuration from a file and the environment
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty path searches for procurevoice.yaml
// in the working directory and ~/.procurevoice.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("procurevoice")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".procurevoice"))
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads configuration from file and environment. A missing config file
// in the search path is not an error; defaults are used.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the config file when it changes and hands the result to fn.
// Invalid edits are reported through err and leave the caller's config alone.
func (l *Loader) Watch(fn func(cfg *Config, err error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		fn(l.unmarshal())
	})
	l.v.WatchConfig()
}

// Load reads configuration using a new Loader
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)

	v.SetDefault("speech.language", cfg.Speech.Language)
	v.SetDefault("speech.sound", cfg.Speech.Sound)
	v.SetDefault("speech.engine", cfg.Speech.Engine)
	v.SetDefault("speech.rate", cfg.Speech.Rate)
	v.SetDefault("speech.pitch", cfg.Speech.Pitch)
	v.SetDefault("speech.volume", cfg.Speech.Volume)
	v.SetDefault("speech.settle_delay", cfg.Speech.SettleDelay)
	v.SetDefault("speech.word_pace", cfg.Speech.WordPace)
	v.SetDefault("speech.filler_words", cfg.Speech.FillerWords)

	v.SetDefault("intent.seed", cfg.Intent.Seed)
	v.SetDefault("intent.generator_url", cfg.Intent.GeneratorURL)
	v.SetDefault("intent.generator_api_key", cfg.Intent.GeneratorAPIKey)
	v.SetDefault("intent.generator_timeout", cfg.Intent.GeneratorTimeout)
	v.SetDefault("intent.generator_categories", cfg.Intent.GeneratorCategories)

	v.SetDefault("training.url", cfg.Training.URL)
	v.SetDefault("training.file", cfg.Training.File)
	v.SetDefault("training.timeout", cfg.Training.Timeout)

	v.SetDefault("archive.enabled", cfg.Archive.Enabled)
	v.SetDefault("archive.path", cfg.Archive.Path)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
