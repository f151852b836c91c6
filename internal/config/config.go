package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	LLM        LLMConfig
	Ollama     OllamaConfig
	Azure      AzureConfig
	Figma      FigmaConfig
	Confluence ConfluenceConfig
	Report     ReportConfig
	Search     SearchConfig
	Backup     BackupConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// LLMConfig selects the question enhancement backend: none, ollama or azure.
type LLMConfig struct {
	Backend string
	Timeout string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type AzureConfig struct {
	Endpoint   string
	Deployment string
	APIKey     string
}

type FigmaConfig struct {
	Token string
}

type ConfluenceConfig struct {
	Dir string
}

type ReportConfig struct {
	MaxItems int
}

type SearchConfig struct {
	DefaultLimit int
}

type BackupConfig struct {
	S3Bucket string
	S3Prefix string
}

type WorkerConfig struct {
	PollInterval string
}

// LLM backends.
const (
	BackendNone   = "none"
	BackendOllama = "ollama"
	BackendAzure  = "azure"
)

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		LLM:     LLMConfig{Backend: BackendNone, Timeout: "20s"},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Search: SearchConfig{DefaultLimit: 10},
		Backup: BackupConfig{S3Prefix: "ticketlens"},
		Worker: WorkerConfig{PollInterval: "500ms"},
	}
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, environment variables and the secret store.
//
// The config file lives at $XDG_CONFIG_HOME/ticketlens/config.json and may
// contain comments. .env values never replace variables already set in the
// environment. Environment variables (TICKETLENS_*) override file values;
// secrets missing from the environment are read from secrets.json.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env file not loaded", "error", err)
	}
	return loadWith(newFileBackend(ConfigFilePath()), NewSecretStore())
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !slices.Contains([]string{BackendNone, BackendOllama, BackendAzure}, c.LLM.Backend) {
		return fmt.Errorf("invalid llm.backend %q (want none, ollama or azure)", c.LLM.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Report.MaxItems < 0 {
		return fmt.Errorf("invalid report.max_items %d", c.Report.MaxItems)
	}
	return nil
}

// LLMTimeout parses llm.timeout, falling back to 20s.
func (c Config) LLMTimeout() time.Duration {
	return parseDuration("llm.timeout", c.LLM.Timeout, 20*time.Second)
}

// WorkerPollInterval parses worker.poll_interval, falling back to 500ms.
func (c Config) WorkerPollInterval() time.Duration {
	return parseDuration("worker.poll_interval", c.Worker.PollInterval, 500*time.Millisecond)
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}
