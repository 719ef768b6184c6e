package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-assistant/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "embeddedassistant.googleapis.com:443", cfg.Assistant.Endpoint)
	assert.Equal(t, "en-US", cfg.Assistant.LanguageCode)
	assert.Equal(t, 60*time.Second, cfg.Assistant.RequestTimeout())
	assert.Equal(t, []string{domain.AssistantScope}, cfg.OAuth.Scopes)
	assert.Equal(t, 5*time.Minute, cfg.OAuth.ConsentWait())
	assert.Equal(t, "builtin", cfg.Schema.Generator)
	assert.Equal(t, "speaker", cfg.Audio.Sink)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 100, cfg.Audio.Volume)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, domain.DefaultArtifacts("."), cfg.Files.Artifacts())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TEXT_ASSISTANT_DIR", "/var/lib/assistant")

	path := writeFile(t, dir, "config.yaml", `
files:
  dir: ${TEXT_ASSISTANT_DIR}
  token: /run/secrets/token.json
assistant:
  language_code: de-DE
  timeout: 15s
audio:
  sink: wav
  wav_dir: ${TEXT_ASSISTANT_DIR}/wav
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	artifacts := cfg.Files.Artifacts()
	assert.Equal(t, "/var/lib/assistant/credentials.json", artifacts.ClientSecret)
	assert.Equal(t, "/run/secrets/token.json", artifacts.Token)
	assert.Equal(t, "de-DE", cfg.Assistant.LanguageCode)
	assert.Equal(t, 15*time.Second, cfg.Assistant.RequestTimeout())
	assert.Equal(t, "wav", cfg.Audio.Sink)
	assert.Equal(t, "/var/lib/assistant/wav", cfg.Audio.WAVDir)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("TEXT_ASSISTANT_TEST_LANG") })

	writeFile(t, dir, ".env", "TEXT_ASSISTANT_TEST_LANG=fr-FR\n")
	path := writeFile(t, dir, "config.yaml", "assistant:\n  language_code: ${TEXT_ASSISTANT_TEST_LANG}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fr-FR", cfg.Assistant.LanguageCode)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")
	assert.ErrorContains(t, err, "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown sink", func(c *Config) { c.Audio.Sink = "bluetooth" }, "audio.sink"},
		{"negative sample rate", func(c *Config) { c.Audio.SampleRate = -1 }, "audio.sample_rate"},
		{"volume too high", func(c *Config) { c.Audio.Volume = 150 }, "audio.volume"},
		{"unknown generator", func(c *Config) { c.Schema.Generator = "buf" }, "schema.generator"},
		{"bad timeout", func(c *Config) { c.Assistant.Timeout = "soon" }, "assistant.timeout"},
		{"bad port", func(c *Config) { c.OAuth.RedirectPort = 70000 }, "oauth.redirect_port"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.setDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
