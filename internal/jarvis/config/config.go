// Package config loads the assistant's configuration from built-in
// defaults, an optional YAML file and JARVIS_ environment variables, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates levels: JARVIS_LLM__API_KEY sets llm.api_key.
const EnvPrefix = "JARVIS_"

type Config struct {
	Log           LogConfig           `koanf:"log"`
	LLM           LLMConfig           `koanf:"llm"`
	Vision        VisionConfig        `koanf:"vision"`
	Speech        SpeechConfig        `koanf:"speech"`
	Search        SearchConfig        `koanf:"search"`
	Device        DeviceConfig        `koanf:"device"`
	Agent         AgentConfig         `koanf:"agent"`
	Data          DataConfig          `koanf:"data"`
	Server        ServerConfig        `koanf:"server"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Matrix        MatrixConfig        `koanf:"matrix"`
	Tracing       TracingConfig       `koanf:"tracing"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text, json
}

type LLMConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
}

type VisionConfig struct {
	Model string `koanf:"model"`
}

type SpeechConfig struct {
	Model    string `koanf:"model"`
	Language string `koanf:"language"`
	// RecordCommand records one utterance into "{file}".
	RecordCommand []string `koanf:"record_command"`
	// TTSCommand receives the reply text as its last argument.
	TTSCommand []string `koanf:"tts_command"`
}

type SearchConfig struct {
	Provider   string        `koanf:"provider"` // auto, serpapi, duckduckgo
	SerpAPIKey string        `koanf:"serpapi_key"`
	CacheSize  int           `koanf:"cache_size"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	Timeout    time.Duration `koanf:"timeout"`
}

type DeviceConfig struct {
	ADBPath         string `koanf:"adb_path"`
	Serial          string `koanf:"serial"`
	SyncAppsOnStart bool   `koanf:"sync_apps_on_start"`
}

type AgentConfig struct {
	MaxRounds       int           `koanf:"max_rounds"`
	MaxSearches     int           `koanf:"max_searches"`
	MaxParallel     int           `koanf:"max_parallel"`
	SkillTimeout    time.Duration `koanf:"skill_timeout"`
	RepairArguments bool          `koanf:"repair_arguments"`
	ProfilePath     string        `koanf:"profile_path"`
}

type DataConfig struct {
	FactsFile string `koanf:"facts_file"`
	Database  string `koanf:"database"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	Token          string        `koanf:"token"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	SessionTTL     time.Duration `koanf:"session_ttl"`
}

type NotificationsConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

type MatrixConfig struct {
	Homeserver     string   `koanf:"homeserver"`
	UserID         string   `koanf:"user_id"`
	AccessToken    string   `koanf:"access_token"`
	Rooms          []string `koanf:"rooms"`
	AllowedSenders []string `koanf:"allowed_senders"`
}

type TracingConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.base_url":    "https://api.groq.com/openai/v1",
	"llm.model":       "openai/gpt-oss-120b",
	"llm.temperature": 0.1,
	"llm.timeout":     "120s",
	"llm.max_retries": 3,

	"vision.model": "meta-llama/llama-4-maverick-17b-128e-instruct",
	"speech.model": "whisper-large-v3",

	"search.provider":   "auto",
	"search.cache_size": 128,
	"search.cache_ttl":  "10m",
	"search.timeout":    "15s",

	"device.adb_path":           "adb",
	"device.sync_apps_on_start": true,

	"agent.max_rounds":    8,
	"agent.max_searches":  1,
	"agent.max_parallel":  4,
	"agent.skill_timeout": "60s",

	"data.facts_file": "Data/long_term_memory.json",
	"data.database":   "Data/jarvis.db",

	"server.addr":             ":8000",
	"server.max_upload_bytes": 25 << 20,
	"server.session_ttl":      "30m",

	"notifications.enabled":  false,
	"notifications.interval": "5m",

	"tracing.exporter": "none",
}

// Load builds a Config. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps JARVIS_LLM__API_KEY to llm.api_key.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.Log.Format, "text", "json"), "log.format must be text or json, got %q", c.Log.Format)
	check(c.LLM.BaseURL != "", "llm.base_url is required")
	check(c.LLM.Model != "", "llm.model is required")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be within [0, 2]")
	check(oneOf(c.Search.Provider, "auto", "serpapi", "duckduckgo"),
		"search.provider must be auto, serpapi or duckduckgo, got %q", c.Search.Provider)
	check(c.Search.Provider != "serpapi" || c.Search.SerpAPIKey != "", "search.serpapi_key is required for the serpapi provider")
	check(c.Agent.MaxRounds > 0, "agent.max_rounds must be positive")
	check(c.Agent.MaxSearches >= 0, "agent.max_searches must not be negative")
	check(c.Data.FactsFile != "", "data.facts_file is required")
	check(c.Data.Database != "", "data.database is required")
	check(!c.Notifications.Enabled || c.Notifications.Interval > 0, "notifications.interval must be positive when enabled")
	check(oneOf(c.Tracing.Exporter, "none", "stdout", "otlp"),
		"tracing.exporter must be none, stdout or otlp, got %q", c.Tracing.Exporter)
	if c.Matrix.Homeserver != "" {
		check(c.Matrix.UserID != "" && c.Matrix.AccessToken != "",
			"matrix.user_id and matrix.access_token are required with matrix.homeserver")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireLLM reports whether model calls can be made.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required (set " + EnvPrefix + "LLM__API_KEY)")
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
