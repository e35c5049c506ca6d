// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// EnvPrefix prefixes every environment variable override (SUPPORTBOT_BACKEND_URL, ...).
	EnvPrefix = "SUPPORTBOT"
	// DefaultModelName identifies the chat service in metrics and API responses.
	DefaultModelName = "customer-support-chatbot"
	// defaultRequestTimeout is the default timeout for requests to the model server.
	defaultRequestTimeout = 600 * time.Second
	// defaultShutdownTimeout bounds the graceful shutdown of the HTTP API.
	defaultShutdownTimeout = 10 * time.Second
)

// Backend types understood by the provider factory.
const (
	BackendLlamaCpp = "llama.cpp"
	BackendOllama   = "ollama"
)

// Config represents the top-level application configuration.
type Config struct {
	ModelName      string           `json:"modelName" mapstructure:"modelName"`
	Generation     GenerationConfig `json:"generation" mapstructure:"generation"`
	Backend        Backend          `json:"backend" mapstructure:"backend"`
	Server         ServerConfig     `json:"server" mapstructure:"server"`
	Evaluation     EvaluationConfig `json:"evaluation" mapstructure:"evaluation"`
	TimeoutSeconds int              `json:"timeout" mapstructure:"timeout"`
	LogDir         string           `json:"logDir" mapstructure:"logDir"`
	LogLevel       string           `json:"logLevel" mapstructure:"logLevel"`
	LogFormat      string           `json:"logFormat" mapstructure:"logFormat"`
	MetricsDir     string           `json:"metricsDir" mapstructure:"metricsDir"`
	Debug          bool             `json:"debug" mapstructure:"debug"`
	ConfigPath     string           `json:"-" mapstructure:"-"`
}

// GenerationConfig names the base model, the fine-tuned adapter applied on top of it and the
// sampling parameters used for every chat completion. It is read-only once loaded.
type GenerationConfig struct {
	BaseModel         string  `json:"base_model" mapstructure:"base_model"`
	AdapterPath       string  `json:"adapter_path" mapstructure:"adapter_path"`
	MaxNewTokens      int     `json:"max_new_tokens" mapstructure:"max_new_tokens"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	TopP              float64 `json:"top_p" mapstructure:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty" mapstructure:"repetition_penalty"`
}

// Backend describes the model server hosting the base model and adapter.
type Backend struct {
	Name string `json:"name" mapstructure:"name"`
	Type string `json:"type" mapstructure:"type"`
	URL  string `json:"url" mapstructure:"url"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// EvaluationConfig controls where the held-out dataset comes from and where results go.
type EvaluationConfig struct {
	DatasetPath string `json:"dataset_path" mapstructure:"dataset_path"`
	Dataset     string `json:"dataset" mapstructure:"dataset"`
	Split       string `json:"split" mapstructure:"split"`
	HubURL      string `json:"hub_url" mapstructure:"hub_url"`
	Samples     int    `json:"samples" mapstructure:"samples"`
	ResultsDir  string `json:"results_dir" mapstructure:"results_dir"`
}

// defaults lists every configuration key with its built-in value. Registering all keys lets
// viper resolve SUPPORTBOT_* environment overrides during Unmarshal.
var defaults = map[string]any{
	"modelName":                     DefaultModelName,
	"timeout":                       int(defaultRequestTimeout.Seconds()),
	"logDir":                        "logs",
	"logLevel":                      "info",
	"logFormat":                     "console",
	"metricsDir":                    "metrics",
	"debug":                         false,
	"generation.base_model":         "TinyLlama/TinyLlama-1.1B-Chat-v1.0",
	"generation.adapter_path":       "models/customer-support-model",
	"generation.max_new_tokens":     150,
	"generation.temperature":        0.7,
	"generation.top_p":              0.9,
	"generation.repetition_penalty": 1.2,
	"backend.name":                  "local",
	"backend.type":                  BackendLlamaCpp,
	"backend.url":                   "http://localhost:8080",
	"server.host":                   "0.0.0.0",
	"server.port":                   8000,
	"server.shutdown_timeout":       int(defaultShutdownTimeout.Seconds()),
	"evaluation.dataset_path":       "",
	"evaluation.dataset":            "bitext/Bitext-customer-support-llm-chatbot-training-dataset",
	"evaluation.split":              "train",
	"evaluation.hub_url":            "https://datasets-server.huggingface.co",
	"evaluation.samples":            50,
	"evaluation.results_dir":        "evalData",
}

// NewViper returns a viper instance seeded with defaults and wired to SUPPORTBOT_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := FromViper(NewViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadEnv loads .env files into the process environment. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ReadConfigFile reads path into v. A missing file is not an error; the defaults apply.
func ReadConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not read config file %q: %w", path, err)
	}
	return nil
}

// FromViper materializes the merged viper state (flags > env > file > defaults).
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// ConfigFileUsed reports the configured path even when the file was absent.
	if path := v.ConfigFileUsed(); path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg.ConfigPath = path
		}
	}
	return cfg, nil
}

// Load reads the configuration file at path, applies environment overrides and validates the result.
// Unlike the CLI, an explicitly named file that does not exist is an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	cfg, err := FromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend.Type)) {
	case BackendLlamaCpp, "llamacpp", BackendOllama:
	default:
		return fmt.Errorf("invalid backend type %q (expected %q or %q)", c.Backend.Type, BackendLlamaCpp, BackendOllama)
	}
	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend url is required")
	}
	g := c.Generation
	if strings.TrimSpace(g.BaseModel) == "" {
		return errors.New("generation.base_model is required")
	}
	if strings.TrimSpace(g.AdapterPath) == "" {
		return errors.New("generation.adapter_path is required")
	}
	if g.MaxNewTokens <= 0 {
		return fmt.Errorf("generation.max_new_tokens must be positive, got %d", g.MaxNewTokens)
	}
	if g.Temperature < 0 {
		return fmt.Errorf("generation.temperature must not be negative, got %v", g.Temperature)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("generation.top_p must be in (0, 1], got %v", g.TopP)
	}
	if g.RepetitionPenalty <= 0 {
		return fmt.Errorf("generation.repetition_penalty must be positive, got %v", g.RepetitionPenalty)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range (1..65535): %d", c.Server.Port)
	}
	if c.Evaluation.Samples < 0 {
		return fmt.Errorf("evaluation.samples must not be negative, got %d", c.Evaluation.Samples)
	}
	return nil
}

// RequestTimeout returns the timeout duration for model server requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long the API waits for in-flight requests on shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return defaultShutdownTimeout
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Addr returns the host:port the API listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BackendName returns a string identifier for the backend, preferring the name over the URL.
func (c Config) BackendName() string {
	if name := strings.TrimSpace(c.Backend.Name); name != "" {
		return name
	}
	if url := strings.TrimSpace(c.Backend.URL); url != "" {
		return url
	}
	return c.Backend.Type
}
