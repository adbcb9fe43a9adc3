package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/pkg/schema"
)

// isolate points HOME and the working directory at empty temp dirs so no
// real settings or .env file leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"NEXUS_LISTEN_ADDR", "NEXUS_DB_PATH", "NEXUS_LOG_LEVEL", "NEXUS_JOIN_POLICY",
		"NEXUS_TICK_PERIOD", "NEXUS_SEED", "NEXUS_LLM_PROVIDER", "NEXUS_AUTOSTART",
		"GEMINI_API_KEY", "API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolate(t)

	c, err := loadConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, ":4100", c.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".nexus", "nexus.db"), c.DBPath)
	assert.Equal(t, 1500*time.Millisecond, time.Duration(c.TickPeriod))
	assert.Equal(t, 800*time.Millisecond, time.Duration(c.LogPeriod))
	assert.Equal(t, string(engine.JoinEager), c.JoinPolicy)
	assert.Equal(t, insight.ProviderGemini, c.Provider)
	assert.True(t, c.AutoStart)
	assert.Empty(t, c.apiKey())
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".nexus")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(`
listen_addr: ":9000"
tick_period: 250ms
join_policy: barrier
seed: 42
health_cron: "*/5 * * * *"
`), 0o600))

	c, err := loadConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.ListenAddr)
	assert.Equal(t, 250*time.Millisecond, time.Duration(c.TickPeriod))
	assert.Equal(t, "barrier", c.JoinPolicy)
	assert.Equal(t, uint64(42), c.Seed)
	assert.Equal(t, "*/5 * * * *", c.HealthCron)
}

func TestLoadConfig_ExplicitJSONSettings(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nexus.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_period":"2s","lang":"zh"}`), 0o600))

	c, err := loadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, time.Duration(c.LogPeriod))
	assert.Equal(t, schema.LangZH, schema.ParseLang(c.Lang))
}

func TestLoadConfig_MissingExplicitSettings(t *testing.T) {
	isolate(t)
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o600))
	t.Setenv("NEXUS_LISTEN_ADDR", ":7000")
	t.Setenv("NEXUS_TICK_PERIOD", "3s")
	t.Setenv("NEXUS_AUTOSTART", "false")
	t.Setenv("API_KEY", "legacy")
	t.Setenv("GEMINI_API_KEY", "gem")

	c, err := loadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":7000", c.ListenAddr)
	assert.Equal(t, 3*time.Second, time.Duration(c.TickPeriod))
	assert.False(t, c.AutoStart)
	assert.Equal(t, "gem", c.apiKey())
}

func TestLoadConfig_OpenAIKey(t *testing.T) {
	isolate(t)
	t.Setenv("NEXUS_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", c.apiKey())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	isolate(t)
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("NEXUS_DOTENV_PROBE=1\nNEXUS_MERMAID_BIN_DIR=/opt/mermaid\nNEXUS_LISTEN_ADDR=:1111\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("NEXUS_DOTENV_PROBE")
		os.Unsetenv("NEXUS_MERMAID_BIN_DIR")
	})
	// Already set, even if empty: .env must not override it.
	t.Setenv("NEXUS_LISTEN_ADDR", "")

	c, err := loadConfig("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "/opt/mermaid", c.MermaidBinDir)
	assert.Equal(t, ":4100", c.ListenAddr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"join policy", map[string]string{"NEXUS_JOIN_POLICY": "lazy"}},
		{"log level", map[string]string{"NEXUS_LOG_LEVEL": "loud"}},
		{"duration", map[string]string{"NEXUS_TICK_PERIOD": "soon"}},
		{"non-positive period", map[string]string{"NEXUS_TICK_PERIOD": "-1s"}},
		{"seed", map[string]string{"NEXUS_SEED": "-3"}},
		{"bool", map[string]string{"NEXUS_AUTOSTART": "maybe"}},
		{"provider", map[string]string{"NEXUS_LLM_PROVIDER": "claude"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig("", "")
			assert.Error(t, err)
		})
	}
}

func TestBuildLogger(t *testing.T) {
	c := defaultConfig()
	c.LogFormat = "json"
	l, err := buildLogger(os.Stderr, c)
	require.NoError(t, err)
	assert.NotNil(t, l)

	c.LogFormat = "xml"
	_, err = buildLogger(os.Stderr, c)
	assert.Error(t, err)
}
