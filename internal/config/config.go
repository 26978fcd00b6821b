package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Bus      BusConfig      `yaml:"bus"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LedgerConfig controls the evidence-ledger gateway client and the
// outbox dispatcher's retry policy.
type LedgerConfig struct {
	GatewayURL     string        `yaml:"gateway_url"`
	Channel        string        `yaml:"channel"`
	Chaincode      string        `yaml:"chaincode"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryBase      time.Duration `yaml:"retry_base"`
	RetryCap       time.Duration `yaml:"retry_cap"`
	MaxAttempts    int           `yaml:"max_attempts"`
	DispatchEvery  time.Duration `yaml:"dispatch_every"`
	BatchSize      int           `yaml:"batch_size"`
}

// PipelineConfig controls normalization windows and per-camera lanes.
type PipelineConfig struct {
	MaxClockSkew    time.Duration `yaml:"max_clock_skew"`
	StalenessWindow time.Duration `yaml:"staleness_window"`
	LaneDepth       int           `yaml:"lane_depth"`
	PersistTimeout  time.Duration `yaml:"persist_timeout"`
	DedupeCacheSize int           `yaml:"dedupe_cache_size"`
}

// MatcherConfig holds per-risk acceptance thresholds and the tie-break
// margin. Thresholds are lower for higher risk, trading false positives
// for recall on high-risk subjects.
type MatcherConfig struct {
	TopK              int     `yaml:"top_k"`
	ThresholdCritical float64 `yaml:"threshold_critical"`
	ThresholdHigh     float64 `yaml:"threshold_high"`
	ThresholdMedium   float64 `yaml:"threshold_medium"`
	ThresholdLow      float64 `yaml:"threshold_low"`
	TieMargin         float64 `yaml:"tie_margin"`
}

type BusConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with all defaults applied, for tests and the
// simulator.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Ledger.Channel == "" {
		cfg.Ledger.Channel = "evidence-channel"
	}
	if cfg.Ledger.Chaincode == "" {
		cfg.Ledger.Chaincode = "evidence-contract"
	}
	if cfg.Ledger.RequestTimeout == 0 {
		cfg.Ledger.RequestTimeout = 15 * time.Second
	}
	if cfg.Ledger.RetryBase == 0 {
		cfg.Ledger.RetryBase = 2 * time.Second
	}
	if cfg.Ledger.RetryCap == 0 {
		cfg.Ledger.RetryCap = 5 * time.Minute
	}
	if cfg.Ledger.MaxAttempts == 0 {
		cfg.Ledger.MaxAttempts = 10
	}
	if cfg.Ledger.DispatchEvery == 0 {
		cfg.Ledger.DispatchEvery = time.Second
	}
	if cfg.Ledger.BatchSize == 0 {
		cfg.Ledger.BatchSize = 50
	}
	if cfg.Pipeline.MaxClockSkew == 0 {
		cfg.Pipeline.MaxClockSkew = 5 * time.Second
	}
	if cfg.Pipeline.StalenessWindow == 0 {
		cfg.Pipeline.StalenessWindow = 60 * time.Second
	}
	if cfg.Pipeline.LaneDepth == 0 {
		cfg.Pipeline.LaneDepth = 64
	}
	if cfg.Pipeline.PersistTimeout == 0 {
		cfg.Pipeline.PersistTimeout = 5 * time.Second
	}
	if cfg.Pipeline.DedupeCacheSize == 0 {
		cfg.Pipeline.DedupeCacheSize = 1024
	}
	if cfg.Matcher.TopK == 0 {
		cfg.Matcher.TopK = 5
	}
	if cfg.Matcher.ThresholdCritical == 0 {
		cfg.Matcher.ThresholdCritical = 0.75
	}
	if cfg.Matcher.ThresholdHigh == 0 {
		cfg.Matcher.ThresholdHigh = 0.80
	}
	if cfg.Matcher.ThresholdMedium == 0 {
		cfg.Matcher.ThresholdMedium = 0.85
	}
	if cfg.Matcher.ThresholdLow == 0 {
		cfg.Matcher.ThresholdLow = 0.90
	}
	if cfg.Matcher.TieMargin == 0 {
		cfg.Matcher.TieMargin = 0.01
	}
	if cfg.Bus.SubscriberBuffer == 0 {
		cfg.Bus.SubscriberBuffer = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SENTINEL_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SENTINEL_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SENTINEL_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SENTINEL_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SENTINEL_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SENTINEL_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SENTINEL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SENTINEL_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SENTINEL_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SENTINEL_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SENTINEL_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SENTINEL_LEDGER_GATEWAY_URL"); v != "" {
		cfg.Ledger.GatewayURL = v
	}
	if v := os.Getenv("SENTINEL_LEDGER_CHANNEL"); v != "" {
		cfg.Ledger.Channel = v
	}
}
