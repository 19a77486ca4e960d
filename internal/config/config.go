package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the prediction engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	History   HistoryConfig   `yaml:"history"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Engine    EngineConfig    `yaml:"engine"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// HistoryConfig configures the historical ledger collaborator. When BaseURL
// is empty the embedded sqlite adapter at SQLitePath is used instead.
type HistoryConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	SeriesPath string        `yaml:"seriesPath"`
	LedgerPath string        `yaml:"ledgerPath"`
	Timeout    time.Duration `yaml:"timeout"`
	SQLitePath string        `yaml:"sqlitePath"`
}

// BenchmarkConfig configures the optional peer-statistics collaborator.
type BenchmarkConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the seasonal/model cache. Provider is "memory" or
// "redis"; memory is a bounded in-process LRU.
type CacheConfig struct {
	Provider     string        `yaml:"provider"`
	Capacity     int           `yaml:"capacity"`
	SeasonalTTL  time.Duration `yaml:"seasonalTTL"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// ForecastConfig tunes the ensemble forecaster.
type ForecastConfig struct {
	Lookback  int    `yaml:"lookback"`
	MaxEpochs int    `yaml:"maxEpochs"`
	Weighting string `yaml:"weighting"` // "equal" or "error"
	Seed      int64  `yaml:"seed"`
}

// AnomalyConfig tunes fraud detection.
type AnomalyConfig struct {
	ReportingThreshold  float64 `yaml:"reportingThreshold"`
	DefaultLookbackDays int     `yaml:"defaultLookbackDays"`
}

// EngineConfig bounds engine-level parallelism.
type EngineConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PREDICT_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8086",
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		History: HistoryConfig{
			SeriesPath: "/api/v1/history/series",
			LedgerPath: "/api/v1/history/ledger",
			Timeout:    5 * time.Second,
			SQLitePath: "data/ledger.db",
		},
		Benchmark: BenchmarkConfig{
			Enabled: false,
			Timeout: 3 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Provider:     "memory",
			Capacity:     256,
			SeasonalTTL:  5 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Forecast: ForecastConfig{
			Lookback:  30,
			MaxEpochs: 200,
			Weighting: "equal",
			Seed:      1,
		},
		Anomaly: AnomalyConfig{
			ReportingThreshold:  0.3,
			DefaultLookbackDays: 90,
		},
		Engine: EngineConfig{MaxConcurrent: 4},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PREDICT_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PREDICT_ENGINE_HISTORY_BASE_URL"); v != "" {
		cfg.History.BaseURL = v
	}
	if v := os.Getenv("PREDICT_ENGINE_HISTORY_SQLITE_PATH"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("PREDICT_ENGINE_BENCHMARK_BASE_URL"); v != "" {
		cfg.Benchmark.BaseURL = v
		cfg.Benchmark.Enabled = true
	}
	if v := os.Getenv("PREDICT_ENGINE_BENCHMARK_ENABLED"); v != "" {
		cfg.Benchmark.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PREDICT_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PREDICT_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_PROVIDER"); v != "" {
		cfg.Cache.Provider = v
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_CACHE_SEASONAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SeasonalTTL = d
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_FORECAST_WEIGHTING"); v != "" {
		cfg.Forecast.Weighting = v
	}
	if v := os.Getenv("PREDICT_ENGINE_FORECAST_LOOKBACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.Lookback = n
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_FORECAST_MAX_EPOCHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.MaxEpochs = n
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Anomaly.ReportingThreshold = f
		}
	}
	if v := os.Getenv("PREDICT_ENGINE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxConcurrent = n
		}
	}
}
