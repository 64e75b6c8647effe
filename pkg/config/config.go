package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"KPISentinel/pkg/util"
)

type Config struct {
	Environment  string             `yaml:"environment" default:"development"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Series       SeriesConfig       `yaml:"series"`
	Analysis     AnalysisConfig     `yaml:"analysis"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Presentation PresentationConfig `yaml:"presentation"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Redis        RedisConfig        `yaml:"redis"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Notify       NotifyConfig       `yaml:"notify"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type LoggingConfig struct {
	Level     string `yaml:"level" default:"info"`
	Format    string `yaml:"format" default:"console"`
	Output    string `yaml:"output" default:"stdout"`
	Collector struct {
		Enabled        bool          `yaml:"enabled"`
		Topic          string        `yaml:"topic" default:"kpi-sentinel-logs"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collector"`
}

type SeriesConfig struct {
	WindowSize int `yaml:"window_size" default:"100"`
}

type AnalysisConfig struct {
	K          float64 `yaml:"k" default:"2"`
	MinSamples int     `yaml:"min_samples" default:"10"`
	Alpha      float64 `yaml:"alpha" default:"0.3"`
}

type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval" default:"30s"`
	ScanOnStart bool          `yaml:"scan_on_start"`
	SinkTimeout time.Duration `yaml:"sink_timeout" default:"10s"`
}

type PresentationConfig struct {
	RecentN  int           `yaml:"recent_n" default:"20"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"2s"`
}

type IngestConfig struct {
	RateLimit struct {
		Enabled      bool    `yaml:"enabled" default:"true"`
		Capacity     float64 `yaml:"capacity" default:"200"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"100"`
	} `yaml:"rate_limit"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	SamplesTopic string   `yaml:"samples_topic" default:"kpi-samples"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"kpi-sentinel"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"kpi-samples-dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"kpi"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	AlertTable       string        `yaml:"alert_table" default:"kpi_alerts"`
}

type NotifyConfig struct {
	Webhook struct {
		Enabled bool          `yaml:"enabled"`
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"webhook"`
	Kafka struct {
		Enabled bool   `yaml:"enabled"`
		Topic   string `yaml:"topic" default:"kpi-alerts"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"clickhouse"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Name       string        `yaml:"name" default:"alerts"`
		Workers    int           `yaml:"workers" default:"2"`
		MaxRetries int           `yaml:"max_retries" default:"5"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"queue"`
	WebSocket struct {
		Enabled bool `yaml:"enabled" default:"true"`
		Buffer  int  `yaml:"buffer" default:"32"`
	} `yaml:"websocket"`
}

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs once, after the overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("KPI_HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("KPI_WINDOW_SIZE"); v != "" {
		c.Series.WindowSize = util.ParseIntDefault(v, c.Series.WindowSize)
	}
	if v := os.Getenv("KPI_MONITOR_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KPI_MONITOR_INTERVAL: %w", err)
		}
		c.Monitor.Interval = d
	}
	if v := os.Getenv("KPI_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("KPI_WEBHOOK_URL"); v != "" {
		c.Notify.Webhook.URL = v
		c.Notify.Webhook.Enabled = true
	}
	if v := os.Getenv("KPI_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KPI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Series.WindowSize < 1 {
		return fmt.Errorf("series.window_size must be positive, got %d", c.Series.WindowSize)
	}
	if c.Analysis.K <= 0 {
		return fmt.Errorf("analysis.k must be positive, got %v", c.Analysis.K)
	}
	if c.Analysis.MinSamples < 2 {
		return fmt.Errorf("analysis.min_samples must be at least 2, got %d", c.Analysis.MinSamples)
	}
	if c.Analysis.Alpha <= 0 || c.Analysis.Alpha > 1 {
		return fmt.Errorf("analysis.alpha must be in (0, 1], got %v", c.Analysis.Alpha)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Presentation.RecentN < 1 || c.Presentation.RecentN > c.Series.WindowSize {
		return fmt.Errorf("presentation.recent_n must be in 1..%d, got %d", c.Series.WindowSize, c.Presentation.RecentN)
	}
	needBrokers := c.Kafka.Consumer.Enabled || c.Notify.Kafka.Enabled || c.Logging.Collector.Enabled
	if needBrokers && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.Consumer.Enabled && c.Kafka.SamplesTopic == "" {
		return fmt.Errorf("kafka.samples_topic is required when the consumer is enabled")
	}
	if c.Notify.Kafka.Enabled && c.Notify.Kafka.Topic == "" {
		return fmt.Errorf("notify.kafka.topic is required")
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("notify.webhook.url is required")
	}
	if c.Notify.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("notify.queue requires redis.enabled")
	}
	if c.Notify.Queue.Enabled && !c.Notify.Webhook.Enabled {
		return fmt.Errorf("notify.queue delivers to the webhook; enable notify.webhook")
	}
	if c.Notify.ClickHouse.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("notify.clickhouse requires clickhouse.enabled")
	}
	return nil
}
