//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the settings of the hitl-agent host from a config
// file, HITL_ environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HITL"

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the complete host configuration.
type Config struct {
	Model  ModelConfig  `mapstructure:"model"`
	Search SearchConfig `mapstructure:"search"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// ModelConfig selects the language model.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Name     string `mapstructure:"name"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

// StoreConfig selects the checkpoint store.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	DSN         string `mapstructure:"dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	MaxHistory  int    `mapstructure:"max_history"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]any{
	"model.provider":        ProviderOpenAI,
	"model.name":            "",
	"model.base_url":        "",
	"model.api_key":         "",
	"search.tavily_api_key": "",
	"search.max_results":    2,
	"store.backend":         BackendMemory,
	"store.dsn":             "hitl.db?_busy_timeout=5000&_journal_mode=WAL",
	"store.redis_addr":      "localhost:6379",
	"store.redis_prefix":    "hitl:",
	"store.max_history":     100,
	"server.addr":           ":8080",
	"log.level":             "info",
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration. Variables from the env files (".env" when
// none is given) are exported first without overriding the environment.
// configFile is optional. Environment variables such as HITL_MODEL_NAME
// override the file.
func Load(v *viper.Viper, configFile string, envFiles ...string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// applyFallbacks fills keys from the variables the model and search
// providers document.
func (c *Config) applyFallbacks() {
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderOpenAI:
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderGemini:
			c.Model.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if c.Model.Name == "" {
		switch c.Model.Provider {
		case ProviderOpenAI:
			c.Model.Name = "gpt-4o-mini"
		case ProviderGemini:
			c.Model.Name = "gemini-2.0-flash"
		}
	}
	if c.Search.TavilyAPIKey == "" {
		c.Search.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	if c.Store.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("store.max_history must be positive, got %d", c.Store.MaxHistory))
	}
	return errors.Join(errs...)
}
