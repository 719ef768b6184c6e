package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"text-assistant/internal/domain"
)

type Config struct {
	Files     FilesConfig     `yaml:"files"`
	Assistant AssistantConfig `yaml:"assistant"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Schema    SchemaConfig    `yaml:"schema"`
	Audio     AudioConfig     `yaml:"audio"`
	Log       LogConfig       `yaml:"log"`
}

// FilesConfig locates the setup artifacts. Relative names are resolved
// against Dir.
type FilesConfig struct {
	Dir              string `yaml:"dir"`
	ClientSecret     string `yaml:"client_secret"`
	Token            string `yaml:"token"`
	Device           string `yaml:"device"`
	SchemaSource     string `yaml:"schema_source"`
	SchemaDescriptor string `yaml:"schema_descriptor"`
}

type AssistantConfig struct {
	Endpoint     string `yaml:"endpoint"`
	LanguageCode string `yaml:"language_code"`
	Insecure     bool   `yaml:"insecure"`
	Timeout      string `yaml:"timeout"`
}

type OAuthConfig struct {
	Scopes         []string `yaml:"scopes"`
	RedirectHost   string   `yaml:"redirect_host"`
	RedirectPort   int      `yaml:"redirect_port"`
	ConsentTimeout string   `yaml:"consent_timeout"`
}

type SchemaConfig struct {
	Generator  string `yaml:"generator"`
	ProtocPath string `yaml:"protoc_path"`
}

type AudioConfig struct {
	Sink       string `yaml:"sink"`
	SampleRate int    `yaml:"sample_rate"`
	Volume     int    `yaml:"volume"`
	WAVDir     string `yaml:"wav_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	sinks      = []string{"speaker", "wav", "discard"}
	generators = []string{"builtin", "protoc"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Load reads an optional .env file from the working directory, then the YAML
// file at path with environment variables expanded. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Files.Dir == "" {
		c.Files.Dir = "."
	}
	if c.Files.ClientSecret == "" {
		c.Files.ClientSecret = domain.ClientSecretFile
	}
	if c.Files.Token == "" {
		c.Files.Token = domain.TokenFile
	}
	if c.Files.Device == "" {
		c.Files.Device = domain.DeviceFile
	}
	if c.Files.SchemaSource == "" {
		c.Files.SchemaSource = domain.SchemaSourceFile
	}
	if c.Files.SchemaDescriptor == "" {
		c.Files.SchemaDescriptor = domain.SchemaDescriptorFile
	}
	if c.Assistant.Endpoint == "" {
		c.Assistant.Endpoint = "embeddedassistant.googleapis.com:443"
	}
	if c.Assistant.LanguageCode == "" {
		c.Assistant.LanguageCode = "en-US"
	}
	if c.Assistant.Timeout == "" {
		c.Assistant.Timeout = "60s"
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = []string{domain.AssistantScope}
	}
	if c.OAuth.RedirectHost == "" {
		c.OAuth.RedirectHost = "127.0.0.1"
	}
	if c.OAuth.ConsentTimeout == "" {
		c.OAuth.ConsentTimeout = "5m"
	}
	if c.Schema.Generator == "" {
		c.Schema.Generator = "builtin"
	}
	if c.Schema.ProtocPath == "" {
		c.Schema.ProtocPath = "protoc"
	}
	if c.Audio.Sink == "" {
		c.Audio.Sink = "speaker"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Volume == 0 {
		c.Audio.Volume = 100
	}
	if c.Audio.WAVDir == "" {
		c.Audio.WAVDir = "./responses"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(sinks, c.Audio.Sink) {
		errs = append(errs, fmt.Errorf("audio.sink %q: want one of %v", c.Audio.Sink, sinks))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Volume <= 0 || c.Audio.Volume > 100 {
		errs = append(errs, fmt.Errorf("audio.volume must be in 1..100, got %d", c.Audio.Volume))
	}
	if !slices.Contains(generators, c.Schema.Generator) {
		errs = append(errs, fmt.Errorf("schema.generator %q: want one of %v", c.Schema.Generator, generators))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q: want one of %v", c.Log.Level, logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q: want one of %v", c.Log.Format, logFormats))
	}
	if c.OAuth.RedirectPort < 0 || c.OAuth.RedirectPort > 65535 {
		errs = append(errs, fmt.Errorf("oauth.redirect_port out of range: %d", c.OAuth.RedirectPort))
	}
	if _, err := time.ParseDuration(c.Assistant.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("assistant.timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.OAuth.ConsentTimeout); err != nil {
		errs = append(errs, fmt.Errorf("oauth.consent_timeout: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (f FilesConfig) Artifacts() domain.Artifacts {
	resolve := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(f.Dir, name)
	}
	return domain.Artifacts{
		ClientSecret:     resolve(f.ClientSecret),
		Token:            resolve(f.Token),
		Device:           resolve(f.Device),
		SchemaSource:     resolve(f.SchemaSource),
		SchemaDescriptor: resolve(f.SchemaDescriptor),
	}
}

// RequestTimeout bounds one Assist exchange. Zero disables the bound.
func (a AssistantConfig) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(a.Timeout)
	return d
}

func (o OAuthConfig) ConsentWait() time.Duration {
	d, _ := time.ParseDuration(o.ConsentTimeout)
	return d
}
