// Package config loads codecrew settings from defaults, an optional config
// file, a .env file and CODECREW_* environment variables, in rising order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ravi-parthasarathy/codecrew/pkg/llm"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
	"github.com/ravi-parthasarathy/codecrew/pkg/store"
	"github.com/ravi-parthasarathy/codecrew/pkg/stream"
)

const (
	envPrefix      = "CODECREW"
	configName     = "codecrew"
	homeConfigDir  = ".codecrew"
	dotEnvFileName = ".env"
)

// Config is the whole process configuration. It is built once at startup and
// passed down by value.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	DefaultModel    string        `mapstructure:"default_model"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	UseStreaming    bool          `mapstructure:"use_streaming"`
}

type PipelineConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RefinePolicy string        `mapstructure:"refine_policy"`
}

type StreamConfig struct {
	CodeChunkSize  int           `mapstructure:"code_chunk_size"`
	ProseChunkSize int           `mapstructure:"prose_chunk_size"`
	ChunkDelay     time.Duration `mapstructure:"chunk_delay"`
}

// StoreConfig selects where finished runs are kept. An empty RedisAddr keeps
// them in memory.
type StoreConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxRuns       int           `mapstructure:"max_runs"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"server.addr": ":8080",

	"llm.provider":          "openai",
	"llm.base_url":          "http://localhost:11434/v1",
	"llm.api_key":           "ollama-local",
	"llm.default_model":     "mistral:7b-instruct",
	"llm.request_timeout":   "0s",
	"llm.anthropic_api_key": "",
	"llm.gemini_api_key":    "",
	"llm.use_streaming":     false,

	"pipeline.stage_timeout": "2m",
	"pipeline.max_attempts":  1,
	"pipeline.refine_policy": string(pipeline.RefineOnFindings),

	"stream.code_chunk_size":  stream.DefaultCodeChunkSize,
	"stream.prose_chunk_size": stream.DefaultProseChunkSize,
	"stream.chunk_delay":      stream.DefaultChunkDelay.String(),

	"store.redis_addr":     "",
	"store.redis_password": "",
	"store.redis_db":       0,
	"store.ttl":            "24h",
	"store.max_runs":       store.DefaultMaxRuns,

	"log.level":  "info",
	"log.format": "text",
}

// Load reads the configuration. An explicit path must exist; with an empty
// path, codecrew.{yaml,toml,json} is looked up in the working directory and
// then in ~/.codecrew, and running without any file is fine.
func Load(path string) (Config, error) {
	if err := godotenv.Load(dotEnvFileName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnvFileName, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, homeConfigDir))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := pipeline.ParseRefinePolicy(c.Pipeline.RefinePolicy); err != nil {
		return fmt.Errorf("pipeline.refine_policy: %w", err)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.StageTimeout < 0 {
		return fmt.Errorf("pipeline.stage_timeout must not be negative")
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("llm.request_timeout must not be negative")
	}
	if c.Stream.CodeChunkSize <= 0 || c.Stream.ProseChunkSize <= 0 {
		return fmt.Errorf("stream chunk sizes must be positive")
	}
	if c.Stream.ChunkDelay < 0 {
		return fmt.Errorf("stream.chunk_delay must not be negative")
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("store.ttl must not be negative")
	}
	return nil
}

// LLMClientConfig is the model client configuration.
func (c Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider:        c.LLM.Provider,
		BaseURL:         c.LLM.BaseURL,
		APIKey:          c.LLM.APIKey,
		DefaultModel:    c.LLM.DefaultModel,
		RequestTimeout:  c.LLM.RequestTimeout,
		AnthropicAPIKey: c.LLM.AnthropicAPIKey,
		GeminiAPIKey:    c.LLM.GeminiAPIKey,
		UseStreaming:    c.LLM.UseStreaming,
	}
}

// PipelineOptions are the orchestrator options; the logger is left to the
// caller.
func (c Config) PipelineOptions() pipeline.Options {
	policy, _ := pipeline.ParseRefinePolicy(c.Pipeline.RefinePolicy)
	return pipeline.Options{
		StageTimeout: c.Pipeline.StageTimeout,
		MaxAttempts:  c.Pipeline.MaxAttempts,
		RefinePolicy: policy,
	}
}

// StreamOptions are the emitter's chunking and pacing options.
func (c Config) StreamOptions() stream.Options {
	return stream.Options{
		CodeChunkSize:  c.Stream.CodeChunkSize,
		ProseChunkSize: c.Stream.ProseChunkSize,
		ChunkDelay:     c.Stream.ChunkDelay,
	}
}

// RedisConfig is the run store's Redis configuration.
func (c Config) RedisConfig() store.RedisConfig {
	return store.RedisConfig{
		Addr:     c.Store.RedisAddr,
		Password: c.Store.RedisPassword,
		DB:       c.Store.RedisDB,
		TTL:      c.Store.TTL,
	}
}
