package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int           `yaml:"max_conns"`
		MinConns        int           `yaml:"min_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"postgres"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic"`
		OpsLogTopic  string   `yaml:"ops_log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Fetcher struct {
		Timeout       time.Duration `yaml:"timeout"`
		RenderTimeout time.Duration `yaml:"render_timeout"`
		RenderURL     string        `yaml:"render_url"`
		UserAgent     string        `yaml:"user_agent"`
		ForceRender   bool          `yaml:"force_render"`
		RenderOnBlock bool          `yaml:"render_on_block"`
	} `yaml:"fetcher"`
	Checker struct {
		BatchLimit    int            `yaml:"batch_limit"`
		PacingDelay   time.Duration  `yaml:"pacing_delay"`
		Interval      time.Duration  `yaml:"interval"`
		DefaultQPM    int            `yaml:"default_qpm"`
		RetailerQPM   map[string]int `yaml:"retailer_qpm"`
		RetailerCache time.Duration  `yaml:"retailer_cache_ttl"`
	} `yaml:"checker"`
	Trainer struct {
		ArtifactPath      string        `yaml:"artifact_path"`
		Interval          time.Duration `yaml:"interval"`
		LookbackDays      int           `yaml:"lookback_days"`
		HorizonMinutes    int           `yaml:"horizon_minutes"`
		HistoryWindowDays int           `yaml:"history_window_days"`
		SampleStepMinutes int           `yaml:"sample_step_minutes"`
		MaxSamples        int           `yaml:"max_samples"`
	} `yaml:"trainer"`
	Propensity struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"propensity"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PG_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIGNAL_TOPIC"); v != "" {
		c.Kafka.SignalTopic = v
	}
	if v := os.Getenv("RENDER_SERVICE_URL"); v != "" {
		c.Fetcher.RenderURL = v
	}
	if v := os.Getenv("FETCH_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Fetcher.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FORCE_RENDER"); v != "" {
		c.Fetcher.ForceRender = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RENDER_ON_BLOCK"); v != "" {
		c.Fetcher.RenderOnBlock = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("DEFAULT_QPM"); v != "" {
		if qpm, err := strconv.Atoi(v); err == nil && qpm > 0 {
			c.Checker.DefaultQPM = qpm
		}
	}
	if v := os.Getenv("PACING_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			c.Checker.PacingDelay = time.Duration(ms) * time.Millisecond
		}
	}

	// Per-retailer budget overrides: QPM_<SLUG>=12 (slug uppercased,
	// dashes as underscores).
	if c.Checker.RetailerQPM == nil {
		c.Checker.RetailerQPM = make(map[string]int)
	}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "QPM_") {
			continue
		}
		slug := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, "QPM_"), "_", "-"))
		if qpm, err := strconv.Atoi(value); err == nil && qpm > 0 {
			c.Checker.RetailerQPM[slug] = qpm
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Postgres.DSN == "" && os.Getenv("PG_DSN") == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Trainer.ArtifactPath == "" {
		return fmt.Errorf("trainer.artifact_path is required")
	}
	if c.Checker.BatchLimit <= 0 {
		c.Checker.BatchLimit = 25
	}
	if c.Checker.DefaultQPM < 0 {
		return fmt.Errorf("checker.default_qpm must not be negative")
	}
	if c.Fetcher.Timeout <= 0 {
		c.Fetcher.Timeout = 12 * time.Second
	}
	if c.Fetcher.RenderTimeout <= 0 {
		c.Fetcher.RenderTimeout = 35 * time.Second
	}
	return nil
}
