package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/internal/logging"
	"github.com/rendis/nexus/pkg/schema"
)

// duration reads "1.5s"-style strings from yaml, json and the environment.
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds all nexus configuration.
// Priority: env vars > .env > settings file > defaults.
type Config struct {
	ListenAddr  string `json:"listen_addr" yaml:"listen_addr"`
	DBPath      string `json:"db_path" yaml:"db_path"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFormat   string `json:"log_format" yaml:"log_format"`
	Lang        string `json:"lang" yaml:"lang"`
	AutoStart   bool   `json:"autostart" yaml:"autostart"`
	PersistLogs bool   `json:"persist_logs" yaml:"persist_logs"`

	TickPeriod duration `json:"tick_period" yaml:"tick_period"`
	LogPeriod  duration `json:"log_period" yaml:"log_period"`
	JoinPolicy string   `json:"join_policy" yaml:"join_policy"`
	Seed       uint64   `json:"seed" yaml:"seed"`

	RedisURL string `json:"redis_url" yaml:"redis_url"`

	Provider          string   `json:"llm_provider" yaml:"llm_provider"`
	Model             string   `json:"llm_model" yaml:"llm_model"`
	GeminiAPIKey      string   `json:"gemini_api_key" yaml:"gemini_api_key"`
	OpenAIAPIKey      string   `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL     string   `json:"openai_base_url" yaml:"openai_base_url"`
	GenerationTimeout duration `json:"generation_timeout" yaml:"generation_timeout"`

	HealthCron      string `json:"health_cron" yaml:"health_cron"`
	VaultPassphrase string `json:"vault_passphrase" yaml:"vault_passphrase"`
	MermaidBinDir   string `json:"mermaid_bin_dir" yaml:"mermaid_bin_dir"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4100",
		DBPath:            filepath.Join(nexusDir(), "nexus.db"),
		LogLevel:          "info",
		LogFormat:         logging.FormatText,
		Lang:              string(schema.LangEN),
		AutoStart:         true,
		TickPeriod:        duration(1500 * time.Millisecond),
		LogPeriod:         duration(800 * time.Millisecond),
		JoinPolicy:        string(engine.JoinEager),
		Provider:          insight.ProviderGemini,
		GenerationTimeout: duration(30 * time.Second),
		MermaidBinDir:     filepath.Join(nexusDir(), "bin"),
	}
}

func nexusDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexus"
	}
	return filepath.Join(home, ".nexus")
}

// settingsPaths lists the default settings files, first match wins.
func settingsPaths() []string {
	return []string{
		filepath.Join(nexusDir(), "settings.yaml"),
		filepath.Join(nexusDir(), "settings.yml"),
		filepath.Join(nexusDir(), "settings.json"),
	}
}

// loadConfig layers defaults, the settings file, the .env file and the
// environment. An explicit settingsPath or envFile must exist.
func loadConfig(settingsPath, envFile string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings file.
	if settingsPath != "" {
		if err := readSettings(settingsPath, &cfg); err != nil {
			return cfg, err
		}
	} else {
		for _, p := range settingsPaths() {
			err := readSettings(p, &cfg)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return cfg, err
			}
			break
		}
	}

	// Layer 3: .env, which never overrides variables already set.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return cfg, fmt.Errorf("load .env: %w", err)
		}
	}

	// Layer 4: environment.
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func readSettings(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("NEXUS_LISTEN_ADDR", &cfg.ListenAddr)
	str("NEXUS_DB_PATH", &cfg.DBPath)
	str("NEXUS_LOG_LEVEL", &cfg.LogLevel)
	str("NEXUS_LOG_FORMAT", &cfg.LogFormat)
	str("NEXUS_LANG", &cfg.Lang)
	str("NEXUS_JOIN_POLICY", &cfg.JoinPolicy)
	str("NEXUS_REDIS_URL", &cfg.RedisURL)
	str("NEXUS_LLM_PROVIDER", &cfg.Provider)
	str("NEXUS_LLM_MODEL", &cfg.Model)
	str("NEXUS_HEALTH_CRON", &cfg.HealthCron)
	str("NEXUS_VAULT_PASSPHRASE", &cfg.VaultPassphrase)
	str("NEXUS_MERMAID_BIN_DIR", &cfg.MermaidBinDir)
	str("API_KEY", &cfg.GeminiAPIKey)
	str("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	str("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)

	for name, dst := range map[string]*duration{
		"NEXUS_TICK_PERIOD":        &cfg.TickPeriod,
		"NEXUS_LOG_PERIOD":         &cfg.LogPeriod,
		"NEXUS_GENERATION_TIMEOUT": &cfg.GenerationTimeout,
	} {
		if v := os.Getenv(name); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	for name, dst := range map[string]*bool{
		"NEXUS_AUTOSTART":    &cfg.AutoStart,
		"NEXUS_PERSIST_LOGS": &cfg.PersistLogs,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}
	if v := os.Getenv("NEXUS_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NEXUS_SEED: %w", err)
		}
		cfg.Seed = n
	}
	return nil
}

func (c Config) validate() error {
	if _, err := engine.ParseJoinPolicy(c.JoinPolicy); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.TickPeriod <= 0 || c.LogPeriod <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "tick_period and log_period must be positive")
	}
	switch c.Provider {
	case insight.ProviderGemini, insight.ProviderOpenAI:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown llm_provider %q: must be gemini or openai", c.Provider)
	}
	return nil
}

// apiKey returns the configured key for the selected provider.
func (c Config) apiKey() string {
	if c.Provider == insight.ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}
