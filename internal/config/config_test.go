package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/procurevoice/internal/intent"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procurevoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "en-IN", cfg.Speech.Language)
	assert.Equal(t, 150*time.Millisecond, cfg.Speech.SettleDelay)
	assert.Equal(t, []intent.Category{intent.CategoryAutoReply}, cfg.Intent.Categories())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
speech:
  language: hi-IN
  settle_delay: 200ms
  engine: say
intent:
  seed: 42
  generator_url: http://localhost:8090/generate
  generator_categories: [auto_reply, general]
training:
  file: training.yaml
archive:
  enabled: true
  path: /tmp/pv.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "hi-IN", cfg.Speech.Language)
	assert.Equal(t, 200*time.Millisecond, cfg.Speech.SettleDelay)
	assert.Equal(t, "say", cfg.Speech.Engine)
	assert.True(t, cfg.Speech.Sound)
	assert.Equal(t, int64(42), cfg.Intent.Seed)
	assert.Equal(t, []intent.Category{intent.CategoryAutoReply, intent.CategoryGeneral}, cfg.Intent.Categories())
	assert.Equal(t, "training.yaml", cfg.Training.File)
	assert.True(t, cfg.Archive.Enabled)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_SearchPathDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("PROCUREVOICE_SERVER_ADDR", ":7070")
	t.Setenv("PROCUREVOICE_SPEECH_LANGUAGE", "hi-IN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "hi-IN", cfg.Speech.Language)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"language", "speech:\n  language: fr-FR\n"},
		{"engine", "speech:\n  engine: espeak\n"},
		{"volume", "speech:\n  volume: 2\n"},
		{"settle delay", "speech:\n  settle_delay: 5s\n"},
		{"category", "intent:\n  generator_categories: [poetry]\n"},
		{"archive", "archive:\n  enabled: true\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoader_Watch(t *testing.T) {
	path := writeConfig(t, "speech:\n  language: en-IN\n")
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, path, loader.File())

	var mu sync.Mutex
	var latest *Config
	loader.Watch(func(cfg *Config, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		latest = cfg
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("speech:\n  language: hi-IN\n"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.Speech.Language == "hi-IN"
	}, 5*time.Second, 20*time.Millisecond)
}
