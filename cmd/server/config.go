package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MegaGrindStone/duochat/internal/chat"
	"github.com/MegaGrindStone/duochat/internal/models"
	"gopkg.in/yaml.v3"
)

type endpointConfig struct {
	URL          string `yaml:"url"`
	HealthURL    string `yaml:"healthURL"`
	SystemPrompt string `yaml:"systemPrompt"`
}

type config struct {
	Port             string         `yaml:"port"`
	LogLevel         string         `yaml:"logLevel"`
	Model            string         `yaml:"model"`
	Temperature      float32        `yaml:"temperature"`
	MaxTokens        int            `yaml:"maxTokens"`
	DisplayInterval  time.Duration  `yaml:"displayInterval"`
	FrameInterval    time.Duration  `yaml:"frameInterval"`
	SubmitsPerMinute int            `yaml:"submitsPerMinute"`
	TranscriptPath   string         `yaml:"transcriptPath"`
	Basic            endpointConfig `yaml:"basic"`
	RAG              endpointConfig `yaml:"rag"`
}

const (
	defaultBasicSystemPrompt = "You are a helpful AI assistant."
	defaultRAGSystemPrompt   = "You are a helpful AI assistant with access to additional information via a vector database."
)

func defaultConfig() config {
	params := models.DefaultRequestParams()
	return config{
		Port:            "8080",
		LogLevel:        "info",
		Model:           params.Model,
		Temperature:     params.Temperature,
		MaxTokens:       params.MaxTokens,
		DisplayInterval: chat.DefaultDisplayInterval,
		FrameInterval:   chat.DefaultFrameInterval,
		Basic: endpointConfig{
			URL:          "http://localhost:9214/v1/chat/completions",
			HealthURL:    "http://localhost:9214/v1/health",
			SystemPrompt: defaultBasicSystemPrompt,
		},
		RAG: endpointConfig{
			URL:          "http://localhost:9215/v1/chat/completions",
			HealthURL:    "http://localhost:9215/health",
			SystemPrompt: defaultRAGSystemPrompt,
		},
	}
}

// UnmarshalYAML fills the fields missing from the document with their defaults and validates the
// result.
func (c *config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig config
	raw := rawConfig(defaultConfig())

	if err := value.Decode(&raw); err != nil {
		return err
	}

	cfg := config(raw)
	if err := cfg.validate(); err != nil {
		return err
	}

	*c = cfg
	return nil
}

func (c config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DisplayInterval < 0 || c.FrameInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if c.SubmitsPerMinute < 0 {
		return fmt.Errorf("submitsPerMinute must not be negative")
	}
	if err := c.Basic.validate("basic"); err != nil {
		return err
	}
	return c.RAG.validate("rag")
}

func (e endpointConfig) validate(name string) error {
	if err := validateURL(e.URL); err != nil {
		return fmt.Errorf("invalid %s url: %w", name, err)
	}
	if e.HealthURL == "" {
		return nil
	}
	if err := validateURL(e.HealthURL); err != nil {
		return fmt.Errorf("invalid %s healthURL: %w", name, err)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

// loadConfig reads the config file at path. A missing file yields the defaults.
func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return defaultConfig(), nil
		}
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c config) requestParams() models.RequestParams {
	return models.RequestParams{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}
