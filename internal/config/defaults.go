package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"positioning-lab/internal/metrics"
)

// DefaultModels are the free OpenRouter models offered by the table extractor.
var DefaultModels = []string{
	"mistralai/mistral-small-3.2-24b-instruct:free",
	"moonshotai/kimi-vl-a3b-thinking:free",
	"meta-llama/llama-3.2-11b-vision-instruct:free",
	"qwen/qwen2.5-vl-32b-instruct:free",
	"mistralai/mistral-small-3.1-24b-instruct:free",
	"google/gemma-3-4b:free",
	"google/gemma-3-12b:free",
	"google/gemma-3-27b:free",
	"qwen/qwen2.5-vl-72b-instruct:free",
}

// presets seeds the settings where zero is a valid choice. The YAML file is decoded
// on top, so only keys present in the file replace them.
func presets() Config {
	def := metrics.DefaultConfig()

	var cfg Config
	cfg.HTTP.DisplayUTCOffsetHours = 8
	cfg.Engine.OverboughtThreshold = def.Thresholds.Overbought
	cfg.Engine.OversoldThreshold = def.Thresholds.Oversold
	return cfg
}

func applyDefaults(cfg Config) Config {
	def := metrics.DefaultConfig()

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 120 * time.Second // AI calls are slow
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Engine.TrailingWindowDays == 0 {
		cfg.Engine.TrailingWindowDays = def.TrailingWindowDays
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = def.Workers
	}
	if cfg.Engine.CurrentYearsBack == 0 {
		cfg.Engine.CurrentYearsBack = 1
	}
	if cfg.CFTC.BaseURL == "" {
		cfg.CFTC.BaseURL = "https://www.cftc.gov/files/dea/history"
	}
	if cfg.CFTC.YearsBack == 0 {
		cfg.CFTC.YearsBack = metrics.DefaultWindowYears
	}
	if cfg.CFTC.Timeout == 0 {
		cfg.CFTC.Timeout = 60 * time.Second
	}
	if cfg.CFTC.MaxRetries == 0 {
		cfg.CFTC.MaxRetries = 3
	}
	if cfg.CFTC.CategoryPrefix == "" {
		cfg.CFTC.CategoryPrefix = "M_Money_Positions"
	}
	if cfg.Deribit.BaseURL == "" {
		cfg.Deribit.BaseURL = "https://www.deribit.com/api/v2"
	}
	if cfg.Deribit.WSURL == "" {
		cfg.Deribit.WSURL = "wss://www.deribit.com/ws/api/v2"
	}
	if cfg.Deribit.Transport == "" {
		cfg.Deribit.Transport = "http"
	}
	if cfg.Deribit.Currency == "" {
		cfg.Deribit.Currency = "BTC"
	}
	if cfg.Deribit.RateLimit == 0 {
		cfg.Deribit.RateLimit = 10
	}
	if cfg.Deribit.Timeout == 0 {
		cfg.Deribit.Timeout = 10 * time.Second
	}
	if cfg.Deribit.MaxRetries == 0 {
		cfg.Deribit.MaxRetries = 3
	}
	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.OpenRouter.Model == "" {
		cfg.OpenRouter.Model = DefaultModels[0]
	}
	if cfg.OpenRouter.VisionModel == "" {
		cfg.OpenRouter.VisionModel = DefaultModels[0]
	}
	if cfg.OpenRouter.Title == "" {
		cfg.OpenRouter.Title = "Positioning Dashboards"
	}
	if cfg.OpenRouter.Timeout == 0 {
		cfg.OpenRouter.Timeout = 90 * time.Second
	}
	if cfg.OpenRouter.CacheTTL == 0 {
		cfg.OpenRouter.CacheTTL = 6 * time.Hour
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverFile
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
	if cfg.S3.Prefix == "" {
		cfg.S3.Prefix = "positioning-lab"
	}
	if cfg.Schedule.COTInterval == 0 {
		cfg.Schedule.COTInterval = 24 * time.Hour
	}
	if cfg.Schedule.VolatilityInterval == 0 {
		cfg.Schedule.VolatilityInterval = 30 * time.Minute
	}
	if cfg.Extraction.MaxUploadMB == 0 {
		cfg.Extraction.MaxUploadMB = 20
	}
	if cfg.Extraction.ResultTTL == 0 {
		cfg.Extraction.ResultTTL = time.Hour
	}
	if len(cfg.Extraction.Models) == 0 {
		cfg.Extraction.Models = DefaultModels
	}
	return cfg
}

// applyEnv overrides settings from environment variables. Unparseable values are ignored.
func applyEnv(cfg Config) Config {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &cfg.Storage.ClickhouseDSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey)
	str("OPENROUTER_MODEL", &cfg.OpenRouter.Model)
	str("DERIBIT_TRANSPORT", &cfg.Deribit.Transport)
	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("AWS_ACCESS_KEY_ID", &cfg.S3.AccessKey)
	str("AWS_SECRET_ACCESS_KEY", &cfg.S3.SecretKey)

	if v := os.Getenv("CFTC_MARKETS"); v != "" {
		var markets []string
		for _, m := range strings.Split(v, ";") {
			if m = strings.TrimSpace(m); m != "" {
				markets = append(markets, m)
			}
		}
		cfg.CFTC.Markets = markets
	}
	if v, err := cast.ToIntE(os.Getenv("REDIS_DB")); err == nil && os.Getenv("REDIS_DB") != "" {
		cfg.Redis.DB = v
	}
	if v, err := cast.ToIntE(os.Getenv("CFTC_YEARS_BACK")); err == nil && v > 0 {
		cfg.CFTC.YearsBack = v
	}
	if v, err := cast.ToFloat64E(os.Getenv("TRAILING_WINDOW_DAYS")); err == nil && v > 0 {
		cfg.Engine.TrailingWindowDays = v
	}
	if v, ok := envFloat("OVERBOUGHT_THRESHOLD"); ok {
		cfg.Engine.OverboughtThreshold = v
	}
	if v, ok := envFloat("OVERSOLD_THRESHOLD"); ok {
		cfg.Engine.OversoldThreshold = v
	}
	if v, err := cast.ToDurationE(os.Getenv("COT_INTERVAL")); err == nil && v > 0 {
		cfg.Schedule.COTInterval = v
	}
	if v, err := cast.ToDurationE(os.Getenv("VOLATILITY_INTERVAL")); err == nil && v > 0 {
		cfg.Schedule.VolatilityInterval = v
	}
	return cfg
}

// envFloat reads a set, parseable, non-negative float. Range checks are left to Validate.
func envFloat(key string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
