// Package config assembles server configuration from a .env file, the
// environment and an optional YAML game settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"basewar/server/internal/income"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
)

// Settings are the game rules shared by every base.
type Settings struct {
	BaseRange                     float64 `yaml:"baseRange" json:"baseRange"`
	BaseIncome                    float64 `yaml:"baseIncome" json:"baseIncome"`
	IncomeIncreasePerInvestment   float64 `yaml:"incomeIncreasePerInvestment" json:"incomeIncreasePerInvestment"`
	IncomeMultiplierPerActiveUser float64 `yaml:"incomeMultiplierPerActiveUser" json:"incomeMultiplierPerActiveUser"`
	TickIntervalMillis            int     `yaml:"tickIntervalMillis" json:"tickIntervalMillis"`
}

func DefaultSettings() Settings {
	return Settings{
		BaseRange:                     50,
		BaseIncome:                    10,
		IncomeIncreasePerInvestment:   2,
		IncomeMultiplierPerActiveUser: 0.5,
		TickIntervalMillis:            1000,
	}
}

func (s Settings) Validate() error {
	var errs []error
	check := func(name string, value float64) {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, value))
		}
	}
	check("baseRange", s.BaseRange)
	check("baseIncome", s.BaseIncome)
	check("incomeIncreasePerInvestment", s.IncomeIncreasePerInvestment)
	check("incomeMultiplierPerActiveUser", s.IncomeMultiplierPerActiveUser)
	if s.TickIntervalMillis <= 0 {
		errs = append(errs, fmt.Errorf("tickIntervalMillis must be positive, got %d", s.TickIntervalMillis))
	}
	return errors.Join(errs...)
}

func (s Settings) Income() income.Settings {
	return income.Settings{
		BaseIncome:                    s.BaseIncome,
		IncomeIncreasePerInvestment:   s.IncomeIncreasePerInvestment,
		IncomeMultiplierPerActiveUser: s.IncomeMultiplierPerActiveUser,
	}
}

func (s Settings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMillis) * time.Millisecond
}

// ParseSettings overlays the YAML document in r onto the defaults. Unknown
// keys are rejected.
func ParseSettings(r io.Reader) (Settings, error) {
	settings := DefaultSettings()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func LoadSettings(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()
	return ParseSettings(f)
}

type Config struct {
	Addr string
	// DatabaseURL selects the Postgres store. Empty means in-memory.
	DatabaseURL  string
	FixturesPath string
	SettingsPath string
	LogJSONPath  string
	LogLevel     logging.Severity
	// MessageRate of zero disables inbound limiting.
	MessageRate   float64
	MessageBurst  int
	DebugCommands bool
	Settings      Settings
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		LogLevel:      logging.SeverityInfo,
		MessageRate:   10,
		MessageBurst:  20,
		DebugCommands: true,
		Settings:      DefaultSettings(),
	}
}

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding it, then builds the Config. Missing env
// files are ignored.
func Load(logger telemetry.Logger, envFiles ...string) (Config, error) {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
		logger.Printf("loaded environment from %s", file)
	}
	return FromEnv(os.Getenv, logger)
}

// FromEnv builds a Config from getenv. Malformed numeric values are logged and
// ignored; an unreadable or invalid settings file is an error.
func FromEnv(getenv func(string) string, logger telemetry.Logger) (Config, error) {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	cfg := Default()

	if raw := getenv("ADDR"); raw != "" {
		cfg.Addr = raw
	}
	cfg.DatabaseURL = getenv("DATABASE_URL")
	cfg.FixturesPath = getenv("FIXTURES")
	cfg.SettingsPath = getenv("GAME_SETTINGS")
	cfg.LogJSONPath = getenv("LOG_JSON_PATH")

	if raw := getenv("LOG_LEVEL"); raw != "" {
		if level, err := logging.ParseSeverity(raw); err == nil {
			cfg.LogLevel = level
		} else {
			logger.Printf("invalid LOG_LEVEL=%q: %v", raw, err)
		}
	}
	if raw := getenv("MESSAGE_RATE"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value >= 0 {
			cfg.MessageRate = value
		} else {
			logger.Printf("invalid MESSAGE_RATE=%q", raw)
		}
	}
	if raw := getenv("MESSAGE_BURST"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MessageBurst = value
		} else {
			logger.Printf("invalid MESSAGE_BURST=%q", raw)
		}
	}
	if raw := getenv("DEBUG_COMMANDS"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.DebugCommands = value
		} else {
			logger.Printf("invalid DEBUG_COMMANDS=%q: %v", raw, err)
		}
	}

	if cfg.SettingsPath != "" {
		settings, err := LoadSettings(cfg.SettingsPath)
		if err != nil {
			return Config{}, fmt.Errorf("game settings %s: %w", cfg.SettingsPath, err)
		}
		cfg.Settings = settings
	}

	if raw := getenv("TICK_INTERVAL_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Settings.TickIntervalMillis = value
		} else {
			logger.Printf("invalid TICK_INTERVAL_MS=%q", raw)
		}
	}

	return cfg, nil
}
