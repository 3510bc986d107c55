package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Upload UploadConfig `yaml:"upload"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port int  `yaml:"port"`
	Dev  bool `yaml:"dev"`
}

type UploadConfig struct {
	Dir               string   `yaml:"dir"`
	MaxSizeMB         int64    `yaml:"max_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type OpenAIConfig struct {
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	Models         []string `yaml:"models"`
	MaxTokens      int      `yaml:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the yaml config at path, applies defaults and environment
// overrides. A missing file is not an error: environment plus defaults
// is a complete configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 1010
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "uploads"
	}
	if cfg.Upload.MaxSizeMB == 0 {
		cfg.Upload.MaxSizeMB = 16
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{"png", "jpg", "jpeg", "gif"}
	}
	if len(cfg.OpenAI.Models) == 0 {
		cfg.OpenAI.Models = []string{"gpt-4o", "gpt-4-turbo", "gpt-4-turbo-2024-04-09"}
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 5
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	applyEnv(&cfg)

	return &cfg, nil
}

// applyEnv lets the process environment override file values. The API key
// normally arrives this way rather than via config.yaml.
func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if os.Getenv("APP_ENV") == "development" {
		cfg.Server.Dev = true
	}
}

// MaxBodyBytes returns the upload size cap in bytes.
func (c *UploadConfig) MaxBodyBytes() int64 {
	return c.MaxSizeMB << 20
}
