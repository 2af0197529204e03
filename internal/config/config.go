// Package config loads runtime settings from a YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/metrics"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverDatabase = "database"
)

// Config holds all runtime settings.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	CFTC       CFTCConfig       `yaml:"cftc"`
	Deribit    DeribitConfig    `yaml:"deribit"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	S3         S3Config         `yaml:"s3"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Display timezone offset for "last fetched" stamps (hours east of UTC, default 8).
	DisplayUTCOffsetHours int `yaml:"display_utc_offset_hours"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`   // optional rotating log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type EngineConfig struct {
	TrailingWindowDays  float64 `yaml:"trailing_window_days"`
	OverboughtThreshold float64 `yaml:"overbought_threshold"`
	OversoldThreshold   float64 `yaml:"oversold_threshold"`
	Workers             int     `yaml:"workers"`
	// Alert panel only considers rows on or after Jan 1 of (current year - CurrentYearsBack).
	CurrentYearsBack int `yaml:"current_years_back"`
}

type CFTCConfig struct {
	BaseURL    string        `yaml:"base_url"`
	YearsBack  int           `yaml:"years_back"`
	Markets    []string      `yaml:"markets"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// Trader category column prefix, e.g. M_Money_Positions.
	CategoryPrefix string `yaml:"category_prefix"`
}

type DeribitConfig struct {
	BaseURL    string        `yaml:"base_url"`
	WSURL      string        `yaml:"ws_url"`
	Transport  string        `yaml:"transport"` // http or ws
	Currency   string        `yaml:"currency"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type OpenRouterConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	VisionModel string        `yaml:"vision_model"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`
	DataDir       string `yaml:"data_dir"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	PostgresConns int32  `yaml:"postgres_max_conns"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type ScheduleConfig struct {
	COTInterval        time.Duration `yaml:"cot_interval"`
	VolatilityInterval time.Duration `yaml:"volatility_interval"`
	DisableCOT         bool          `yaml:"disable_cot"`
	DisableVolatility  bool          `yaml:"disable_volatility"`
}

type ExtractionConfig struct {
	MaxUploadMB int           `yaml:"max_upload_mb"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	Models      []string      `yaml:"models"`
}

// Load reads path (missing file is fine), applies defaults and environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := presets()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg = applyDefaults(cfg)
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks engine and storage settings.
func (c Config) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverFile:
	case DriverDatabase:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickhouseDSN == "" {
			return fmt.Errorf("storage driver %q requires postgres_dsn and clickhouse_dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Deribit.Transport != "http" && c.Deribit.Transport != "ws" {
		return fmt.Errorf("unknown deribit transport %q", c.Deribit.Transport)
	}
	if !c.Schedule.DisableCOT && c.Schedule.COTInterval <= 0 {
		return fmt.Errorf("schedule.cot_interval must be positive, got %s", c.Schedule.COTInterval)
	}
	if !c.Schedule.DisableVolatility && c.Schedule.VolatilityInterval <= 0 {
		return fmt.Errorf("schedule.volatility_interval must be positive, got %s", c.Schedule.VolatilityInterval)
	}
	return nil
}

// EngineConfig converts engine settings to a metrics.Config.
func (c Config) EngineConfig() metrics.Config {
	return metrics.Config{
		TrailingWindowDays: c.Engine.TrailingWindowDays,
		Thresholds: domain.Thresholds{
			Overbought: c.Engine.OverboughtThreshold,
			Oversold:   c.Engine.OversoldThreshold,
		},
		Workers: c.Engine.Workers,
	}
}

// DisplayLocation returns the fixed zone used for timestamps shown to users.
func (c Config) DisplayLocation() *time.Location {
	h := c.HTTP.DisplayUTCOffsetHours
	return time.FixedZone(fmt.Sprintf("UTC%+d", h), h*3600)
}
