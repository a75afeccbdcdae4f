package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basewar/server/internal/telemetry"
	"basewar/server/logging"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
	assert.Equal(t, time.Second, cfg.Settings.TickInterval())
	assert.True(t, cfg.DebugCommands)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"ADDR":             ":9090",
		"DATABASE_URL":     "postgres://localhost/basewar",
		"LOG_LEVEL":        "warn",
		"MESSAGE_RATE":     "2.5",
		"MESSAGE_BURST":    "4",
		"TICK_INTERVAL_MS": "250",
		"DEBUG_COMMANDS":   "false",
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://localhost/basewar", cfg.DatabaseURL)
	assert.Equal(t, logging.SeverityWarn, cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.MessageRate)
	assert.Equal(t, 4, cfg.MessageBurst)
	assert.Equal(t, 250*time.Millisecond, cfg.Settings.TickInterval())
	assert.False(t, cfg.DebugCommands)
}

func TestInvalidNumbersAreLoggedAndIgnored(t *testing.T) {
	var logged []string
	logger := func(format string, args ...any) { logged = append(logged, format) }

	cfg, err := FromEnv(envMap(map[string]string{
		"MESSAGE_RATE":     "fast",
		"TICK_INTERVAL_MS": "-5",
		"LOG_LEVEL":        "loud",
	}), telemetry.LoggerFunc(logger))
	require.NoError(t, err)

	assert.Equal(t, Default().MessageRate, cfg.MessageRate)
	assert.Equal(t, 1000, cfg.Settings.TickIntervalMillis)
	assert.Equal(t, logging.SeverityInfo, cfg.LogLevel)
	assert.Len(t, logged, 3)
}

func TestSettingsFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "settings.yaml", "baseRange: 75\nbaseIncome: 12.5\n")

	cfg, err := FromEnv(envMap(map[string]string{"GAME_SETTINGS": path}), nil)
	require.NoError(t, err)

	assert.Equal(t, 75.0, cfg.Settings.BaseRange)
	assert.Equal(t, 12.5, cfg.Settings.BaseIncome)
	assert.Equal(t, 2.0, cfg.Settings.IncomeIncreasePerInvestment)
	assert.Equal(t, 0.5, cfg.Settings.Income().IncomeMultiplierPerActiveUser)
}

func TestParseSettingsRejectsInvalidValues(t *testing.T) {
	_, err := ParseSettings(strings.NewReader("baseIncome: -1\ntickIntervalMillis: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseIncome")
	assert.Contains(t, err.Error(), "tickIntervalMillis")

	_, err = ParseSettings(strings.NewReader("baseRadius: 10\n"))
	require.Error(t, err, "unknown keys must be rejected")
}

func TestParseSettingsAcceptsEmptyDocument(t *testing.T) {
	settings, err := ParseSettings(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestMissingSettingsFileIsAnError(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"GAME_SETTINGS": filepath.Join(t.TempDir(), "missing.yaml")}), nil)
	require.Error(t, err)
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	t.Setenv("FIXTURES", "")
	require.NoError(t, os.Unsetenv("FIXTURES"))
	t.Setenv("ADDR", ":7000")
	path := writeFile(t, ".env", "FIXTURES=seed.yaml\nADDR=:6000\n")

	cfg, err := Load(nil, path, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "seed.yaml", cfg.FixturesPath)
	assert.Equal(t, ":7000", cfg.Addr, "process environment wins over .env")
}
