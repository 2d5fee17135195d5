package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by LoadEnvFile when APP_ENV_FILE is unset.
const DefaultEnvFile = ".env"

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	PollInterval     time.Duration
	BufferSize       int
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	SysfsRoot        string
	OneWire          bool
	Thresholds       ThresholdConfig
	Chart            ChartConfig
	WS               WebsocketConfig
}

// ThresholdConfig holds the fallback hot/critical temperatures in °C used
// when the hardware reports none.
type ThresholdConfig struct {
	Hot      float64
	Critical float64
}

// ChartConfig sizes the rendered charts. Width and Height are the container
// size including the template border.
type ChartConfig struct {
	Width    int
	Height   int
	Step     int
	Template string
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// LoadEnvFile merges variables from the file named by APP_ENV_FILE (or .env)
// into the process environment. Variables that are already set win. A
// missing file is not an error and yields an empty path.
func LoadEnvFile() (string, error) {
	path := strings.TrimSpace(os.Getenv("APP_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("load env file %s: %w", path, err)
	}
	return path, nil
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		PollInterval:     3 * time.Second,
		BufferSize:       4,
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		SysfsRoot:        "/sys",
		OneWire:          false,
		Thresholds: ThresholdConfig{
			Hot:      90,
			Critical: 100,
		},
		Chart: ChartConfig{
			Width:  600,
			Height: 300,
			Step:   5,
		},
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
	}

	if value := strings.TrimSpace(os.Getenv("APP_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if err := positiveDuration("APP_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return Config{}, err
	}

	if err := positiveInt("APP_BUFFER_SIZE", &cfg.BufferSize); err != nil {
		return Config{}, err
	}

	if value := strings.TrimSpace(os.Getenv("APP_ALLOWED_ORIGINS")); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if err := boolean("APP_ENABLE_PROMETHEUS", &cfg.EnablePrometheus); err != nil {
		return Config{}, err
	}

	if err := boolean("APP_ENABLE_PPROF", &cfg.EnablePprof); err != nil {
		return Config{}, err
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}

	if err := boolean("APP_ONEWIRE_ENABLE", &cfg.OneWire); err != nil {
		return Config{}, err
	}

	if err := positiveFloat("APP_TEMP_HOT", &cfg.Thresholds.Hot); err != nil {
		return Config{}, err
	}
	if err := positiveFloat("APP_TEMP_CRITICAL", &cfg.Thresholds.Critical); err != nil {
		return Config{}, err
	}
	if cfg.Thresholds.Critical < cfg.Thresholds.Hot {
		return Config{}, fmt.Errorf("APP_TEMP_CRITICAL (%v) must not be below APP_TEMP_HOT (%v)", cfg.Thresholds.Critical, cfg.Thresholds.Hot)
	}

	if err := positiveInt("APP_CHART_WIDTH", &cfg.Chart.Width); err != nil {
		return Config{}, err
	}
	if err := positiveInt("APP_CHART_HEIGHT", &cfg.Chart.Height); err != nil {
		return Config{}, err
	}
	if err := positiveInt("APP_CHART_STEP", &cfg.Chart.Step); err != nil {
		return Config{}, err
	}
	if cfg.Chart.Step > cfg.Chart.Width {
		return Config{}, fmt.Errorf("APP_CHART_STEP (%d) must not exceed APP_CHART_WIDTH (%d)", cfg.Chart.Step, cfg.Chart.Width)
	}

	if value := strings.TrimSpace(os.Getenv("APP_CHART_TEMPLATE")); value != "" {
		cfg.Chart.Template = value
	}

	if err := positiveInt("APP_WS_MAX_CLIENTS", &cfg.WS.MaxClients); err != nil {
		return Config{}, err
	}
	if err := positiveDuration("APP_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := positiveDuration("APP_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func positiveDuration(key string, dst *time.Duration) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = duration
	return nil
}

func positiveInt(key string, dst *int) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = parsed
	return nil
}

func positiveFloat(key string, dst *float64) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = parsed
	return nil
}

func boolean(key string, dst *bool) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
