package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	clearEnv(t, "TM_OUTPUT", "TM_MAX_RETRIES", "TM_TIMEOUT")
	configPath := writeFile(t, "config.yaml", "output: plain\nmax_retries: 1\ntimeout: 3s\n")

	t.Setenv("TM_OUTPUT", "json")
	t.Setenv("TM_TIMEOUT", "4s")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, MaxRetries: 5, EnvFile: "missing.env"}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.MaxRetries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.MaxRetries)
	}
	if settings.Timeout != 4*time.Second {
		t.Fatalf("expected env timeout over file, got %s", settings.Timeout)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "TM_OUTPUT", "TM_MAX_RETRIES", "TM_TIMEOUT", "TM_COMMAND_TIMEOUT", "TM_LOG_LEVEL", "TM_BASE_URL")
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), MaxRetries: -1, EnvFile: "missing.env"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Timeout != DefaultTimeout || settings.CommandTimeout != DefaultCommandTimeout {
		t.Fatalf("unexpected timeouts %s %s", settings.Timeout, settings.CommandTimeout)
	}
	if settings.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default retries, got %d", settings.MaxRetries)
	}
	if settings.LogLevel != slog.LevelWarn {
		t.Fatalf("expected warn level, got %s", settings.LogLevel)
	}
	if settings.BaseURL != "https://api.tokenmetrics.com" {
		t.Fatalf("unexpected base url %s", settings.BaseURL)
	}
	if settings.Resolver.Aliases["btc"] != "Bitcoin" {
		t.Fatal("expected default resolver aliases")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true, MaxRetries: -1, EnvFile: "missing.env"})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadAPIKeySources(t *testing.T) {
	clearEnv(t, "TM_API_KEY", "TOKENMETRICS_API_KEY", "MY_TM_KEY")
	t.Setenv("MY_TM_KEY", "from-named-env")
	configPath := writeFile(t, "config.yaml", "tokenmetrics:\n  api_key: from-file\n  api_key_env: MY_TM_KEY\n")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, MaxRetries: -1, EnvFile: "missing.env"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.APIKey != "from-named-env" {
		t.Fatalf("expected api_key_env to win over api_key, got %q", settings.APIKey)
	}

	t.Setenv("TOKENMETRICS_API_KEY", "legacy")
	t.Setenv("TM_API_KEY", "primary")
	settings, err = Load(GlobalFlags{ConfigPath: configPath, MaxRetries: -1, EnvFile: "missing.env"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.APIKey != "primary" {
		t.Fatalf("expected TM_API_KEY to win, got %q", settings.APIKey)
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t, "TM_API_KEY", "TOKENMETRICS_API_KEY", "TM_LLM_MODEL")
	t.Setenv("TM_LLM_MODEL", "from-env")
	envPath := writeFile(t, ".env", "TM_API_KEY=from-dotenv\nTM_LLM_MODEL=from-dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("TM_API_KEY") })

	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), MaxRetries: -1, EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.APIKey != "from-dotenv" {
		t.Fatalf("expected api key from .env, got %q", settings.APIKey)
	}
	if settings.LLM.Model != "from-env" {
		t.Fatalf("expected environment to win over .env, got %q", settings.LLM.Model)
	}
}

func TestLoadRejectsInsecureBaseURL(t *testing.T) {
	clearEnv(t, "TM_BASE_URL")
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), MaxRetries: -1, EnvFile: "missing.env", BaseURL: "http://api.example.com"})
	if err == nil {
		t.Fatal("expected insecure base url to be rejected")
	}
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), MaxRetries: -1, EnvFile: "missing.env", BaseURL: "http://127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("expected loopback base url to be accepted: %v", err)
	}
	if settings.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("unexpected base url %s", settings.BaseURL)
	}
}

func TestLoadResolverAndLLMFromFile(t *testing.T) {
	clearEnv(t, "TM_LLM_PROVIDER", "TM_LLM_MODEL", "TM_LLM_API_KEY", "OPENAI_API_KEY", "TM_LLM_BASE_URL", "TM_LOG_LEVEL")
	configPath := writeFile(t, "config.yaml", `log_level: debug
llm:
  provider: Ollama
  model: qwen2.5
  base_url: http://localhost:11434
resolver:
  aliases:
    ARB: Arbitrum
  canonical:
    - name: Arbitrum
      symbol: ARB
  blacklist: [mirrored]
  known_names:
    arb: Arbitrum
  listing_limit: 100
`)
	settings, err := Load(GlobalFlags{ConfigPath: configPath, MaxRetries: -1, EnvFile: "missing.env"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.LLM.Provider != "ollama" || settings.LLM.Model != "qwen2.5" || settings.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected llm settings %+v", settings.LLM)
	}
	if settings.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", settings.LogLevel)
	}
	r := settings.Resolver
	if r.Aliases["arb"] != "Arbitrum" || r.KnownNames["ARB"] != "Arbitrum" || r.ListingLimit != 100 {
		t.Fatalf("resolver overrides not applied: %+v", r)
	}
	if r.Aliases["btc"] != "Bitcoin" {
		t.Fatal("expected defaults to survive overrides")
	}
	last := r.Canonical[len(r.Canonical)-1]
	if last.Name != "Arbitrum" || last.Symbol != "ARB" {
		t.Fatalf("expected appended canonical pair, got %+v", last)
	}
}

func TestVerboseFlagSetsDebug(t *testing.T) {
	clearEnv(t, "TM_LOG_LEVEL")
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), MaxRetries: -1, EnvFile: "missing.env", Verbose: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", settings.LogLevel)
	}
}
