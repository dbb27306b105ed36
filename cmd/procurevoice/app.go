package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/archive"
	"github.com/normanking/procurevoice/internal/config"
	"github.com/normanking/procurevoice/internal/intent"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/logging"
	"github.com/normanking/procurevoice/internal/remote"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/training"
	"github.com/normanking/procurevoice/internal/tts"
)

// app holds what every command needs.
type app struct {
	loader *config.Loader
	cfg    *config.Config
	log    *logging.Logger
	logger zerolog.Logger
}

func newApp(flags *globalFlags) (*app, error) {
	loader := config.NewLoader(flags.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}

	log, err := logging.New(&logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	a := &app{loader: loader, cfg: cfg, log: log, logger: log.Zerolog()}
	if file := loader.File(); file != "" {
		a.logger.Debug().Str("file", file).Msg("Loaded configuration")
	}
	return a, nil
}

func (a *app) close() {
	a.log.Close()
}

func (a *app) language() lang.Tag {
	tag, err := lang.Parse(a.cfg.Speech.Language)
	if err != nil {
		return lang.Default
	}
	return tag
}

func (a *app) resolver() *intent.Resolver {
	cfg := intent.DefaultConfig()
	seed := a.cfg.Intent.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Rand = rand.New(rand.NewSource(seed))

	if url := a.cfg.Intent.GeneratorURL; url != "" {
		cfg.Generator = remote.NewClient(&remote.ClientConfig{
			URL:     url,
			Timeout: a.cfg.Intent.GeneratorTimeout,
			APIKey:  a.cfg.Intent.GeneratorAPIKey,
		}, a.logger)
		cfg.GeneratorTimeout = a.cfg.Intent.GeneratorTimeout
		cfg.GeneratorCategories = a.cfg.Intent.Categories()
		a.logger.Info().Str("url", url).Msg("Remote generation enabled")
	}
	return intent.New(cfg, a.log.Component("intent"))
}

// trainingSource returns nil when no training data is configured.
func (a *app) trainingSource() training.Source {
	src, err := training.Open(a.cfg.Training.URL, a.cfg.Training.File, a.cfg.Training.Timeout)
	if errors.Is(err, training.ErrNoSource) {
		return nil
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Training data disabled")
		return nil
	}
	return src
}

func (a *app) archive() (*archive.Store, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	store, err := archive.Open(a.cfg.Archive.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("path", a.cfg.Archive.Path).Msg("Transcript archive enabled")
	return store, nil
}

func (a *app) speechConfig() tts.Config {
	cfg := tts.DefaultConfig()
	cfg.Rate = a.cfg.Speech.Rate
	cfg.Pitch = a.cfg.Speech.Pitch
	cfg.Volume = a.cfg.Speech.Volume
	cfg.SettleDelay = a.cfg.Speech.SettleDelay
	return cfg
}

func (a *app) filter() *stt.Filter {
	return stt.NewFilter(a.cfg.Speech.FillerWords)
}

// localVoices stands in for a platform catalog when speech is only logged.
var localVoices = []tts.VoiceDescriptor{
	tts.Describe("Rishi", string(lang.English)),
	tts.Describe("Veena", string(lang.English)),
	tts.Describe("Lekha", string(lang.Hindi)),
}

// speechEngine returns the local speech output engine.
func (a *app) speechEngine() (tts.Engine, error) {
	switch a.cfg.Speech.Engine {
	case "say":
		say := tts.NewSayEngine(a.log.Component("say"))
		if !say.IsAvailable() {
			return nil, errors.New("the say engine needs macOS with the say command")
		}
		return say, nil
	default:
		pace := a.cfg.Speech.WordPace
		if pace <= 0 {
			pace = 60 * time.Millisecond
		}
		return tts.NewLogEngine(localVoices, pace, a.log.Component("speech")), nil
	}
}
