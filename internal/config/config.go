package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/resolver"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultCommandTimeout = 2 * time.Minute
	DefaultMaxRetries     = 3
	DefaultEnvFile        = ".env"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	CommandTimeout string
	// MaxRetries is the total attempt budget; negative means unset.
	MaxRetries int
	BaseURL    string
	Verbose    bool
}

type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	CommandTimeout time.Duration
	MaxRetries     int
	LogLevel       slog.Level
	APIKey         string
	BaseURL        string
	LLM            LLMSettings
	Resolver       resolver.Config
}

type keyConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type fileConfig struct {
	Output         string    `yaml:"output"`
	Timeout        string    `yaml:"timeout"`
	CommandTimeout string    `yaml:"command_timeout"`
	MaxRetries     *int      `yaml:"max_retries"`
	LogLevel       string    `yaml:"log_level"`
	TokenMetrics   keyConfig `yaml:"tokenmetrics"`
	LLM            struct {
		keyConfig `yaml:",inline"`
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
	} `yaml:"llm"`
	Resolver struct {
		Aliases      map[string]string    `yaml:"aliases"`
		Canonical    []resolver.Canonical `yaml:"canonical"`
		Blacklist    []string             `yaml:"blacklist"`
		KnownNames   map[string]string    `yaml:"known_names"`
		NameLimit    int                  `yaml:"name_limit"`
		SymbolLimit  int                  `yaml:"symbol_limit"`
		ListingLimit int                  `yaml:"listing_limit"`
	} `yaml:"resolver"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings := defaultSettings()

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.CommandTimeout <= 0 {
		settings.CommandTimeout = DefaultCommandTimeout
	}
	if settings.MaxRetries < 1 {
		settings.MaxRetries = 1
	}
	if settings.BaseURL == "" {
		settings.BaseURL = registry.TokenMetricsBaseURL
	}
	if !registry.IsAllowedBaseURL(settings.BaseURL) {
		return Settings{}, fmt.Errorf("base url must use https unless it targets a loopback host: %s", settings.BaseURL)
	}

	return settings, nil
}

func defaultSettings() Settings {
	return Settings{
		OutputMode:     "json",
		Timeout:        DefaultTimeout,
		CommandTimeout: DefaultCommandTimeout,
		MaxRetries:     DefaultMaxRetries,
		LogLevel:       slog.LevelWarn,
		BaseURL:        registry.TokenMetricsBaseURL,
		LLM:            LLMSettings{Provider: "openai"},
		Resolver:       resolver.DefaultConfig(),
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tm", "config.yaml"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.CommandTimeout != "" {
		d, err := time.ParseDuration(cfg.CommandTimeout)
		if err != nil {
			return fmt.Errorf("config command_timeout: %w", err)
		}
		settings.CommandTimeout = d
	}
	if cfg.MaxRetries != nil {
		settings.MaxRetries = *cfg.MaxRetries
	}
	if cfg.LogLevel != "" {
		if err := settings.LogLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("config log_level: %w", err)
		}
	}

	if cfg.TokenMetrics.APIKey != "" {
		settings.APIKey = cfg.TokenMetrics.APIKey
	}
	if cfg.TokenMetrics.APIKeyEnv != "" {
		settings.APIKey = os.Getenv(cfg.TokenMetrics.APIKeyEnv)
	}
	if cfg.TokenMetrics.BaseURL != "" {
		settings.BaseURL = cfg.TokenMetrics.BaseURL
	}

	if cfg.LLM.Provider != "" {
		settings.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "" {
		settings.LLM.Model = cfg.LLM.Model
	}
	if cfg.LLM.APIKey != "" {
		settings.LLM.APIKey = cfg.LLM.APIKey
	}
	if cfg.LLM.APIKeyEnv != "" {
		settings.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.BaseURL != "" {
		settings.LLM.BaseURL = cfg.LLM.BaseURL
	}

	settings.Resolver = settings.Resolver.Merge(resolver.Config{
		Aliases:      cfg.Resolver.Aliases,
		Canonical:    cfg.Resolver.Canonical,
		Blacklist:    cfg.Resolver.Blacklist,
		KnownNames:   cfg.Resolver.KnownNames,
		NameLimit:    cfg.Resolver.NameLimit,
		SymbolLimit:  cfg.Resolver.SymbolLimit,
		ListingLimit: cfg.Resolver.ListingLimit,
	})
	return nil
}

// loadEnvFile exports variables from a dotenv file without overriding the environment. A
// missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("TM_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("TM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("TM_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.CommandTimeout = d
		}
	}
	if v := os.Getenv("TM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.MaxRetries = n
		}
	}
	if v := os.Getenv("TM_LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			settings.LogLevel = level
		}
	}
	if v := os.Getenv("TOKENMETRICS_API_KEY"); v != "" {
		settings.APIKey = v
	}
	if v := os.Getenv("TM_API_KEY"); v != "" {
		settings.APIKey = v
	}
	if v := os.Getenv("TM_BASE_URL"); v != "" {
		settings.BaseURL = v
	}
	if v := os.Getenv("TM_LLM_PROVIDER"); v != "" {
		settings.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("TM_LLM_MODEL"); v != "" {
		settings.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		settings.LLM.APIKey = v
	}
	if v := os.Getenv("TM_LLM_API_KEY"); v != "" {
		settings.LLM.APIKey = v
	}
	if v := os.Getenv("TM_LLM_BASE_URL"); v != "" {
		settings.LLM.BaseURL = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.CommandTimeout != "" {
		d, err := time.ParseDuration(flags.CommandTimeout)
		if err != nil {
			return fmt.Errorf("parse --command-timeout: %w", err)
		}
		settings.CommandTimeout = d
	}
	if flags.MaxRetries >= 0 {
		settings.MaxRetries = flags.MaxRetries
	}
	if strings.TrimSpace(flags.BaseURL) != "" {
		settings.BaseURL = strings.TrimSpace(flags.BaseURL)
	}
	if flags.Verbose {
		settings.LogLevel = slog.LevelDebug
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
