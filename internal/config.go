package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Settlement    SettlementConfig    `mapstructure:"settlement"`
	Fees          FeesConfig          `mapstructure:"fees"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// ProcessorConfig describes how to reach the payment processor. Mode "stub"
// selects the in-memory gateway for local development.
type ProcessorConfig struct {
	Mode           string        `mapstructure:"mode"`
	BaseURL        string        `mapstructure:"base_url"`
	Sector         string        `mapstructure:"sector"`
	Password       string        `mapstructure:"password"`
	Currency       string        `mapstructure:"currency"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SuccessURL     string        `mapstructure:"success_url"`
	FailURL        string        `mapstructure:"fail_url"`
	NotifyURL      string        `mapstructure:"notify_url"`
	PlatformSdRef  string        `mapstructure:"platform_sd_ref"`
	BusyErrorCode  string        `mapstructure:"busy_error_code"`
	UseOrderPocket bool          `mapstructure:"use_order_pocket"`
}

type SettlementConfig struct {
	RelocationDelay      time.Duration `mapstructure:"relocation_delay"`
	RelocationRetryDelay time.Duration `mapstructure:"relocation_retry_delay"`
	MaxWorkers           int           `mapstructure:"max_workers"`
	JobQueueSize         int           `mapstructure:"job_queue_size"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	SweepMinAge          time.Duration `mapstructure:"sweep_min_age"`
	ReconcileMinAge      time.Duration `mapstructure:"reconcile_min_age"`
	SweepBatch           int           `mapstructure:"sweep_batch"`
	StaleClaimAge        time.Duration `mapstructure:"stale_claim_age"`
}

// FeesConfig holds commission percentages; zero values fall back to the
// built-in rate table.
type FeesConfig struct {
	OutCard string `mapstructure:"out_card"`
	InCard  string `mapstructure:"in_card"`
	InSBP   string `mapstructure:"in_sbp"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	BalanceTopic string   `mapstructure:"balance_topic"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	ProcessorModeReal = "real"
	ProcessorModeStub = "stub"
)

// ApplyDefaults fills zero values with the settings the service runs with
// when nothing is configured.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Processor.Mode == "" {
		c.Processor.Mode = ProcessorModeReal
	}
	if c.Processor.Currency == "" {
		c.Processor.Currency = "643"
	}
	if c.Processor.Timeout <= 0 {
		c.Processor.Timeout = 15 * time.Second
	}
	if c.Processor.BusyErrorCode == "" {
		c.Processor.BusyErrorCode = "109"
	}
	if c.Settlement.RelocationDelay <= 0 {
		c.Settlement.RelocationDelay = 30 * time.Second
	}
	if c.Settlement.RelocationRetryDelay <= 0 {
		c.Settlement.RelocationRetryDelay = 10 * time.Second
	}
	if c.Settlement.MaxWorkers <= 0 {
		c.Settlement.MaxWorkers = 10
	}
	if c.Settlement.JobQueueSize <= 0 {
		c.Settlement.JobQueueSize = 100
	}
	if c.Settlement.SweepInterval <= 0 {
		c.Settlement.SweepInterval = 5 * time.Minute
	}
	if c.Settlement.SweepMinAge <= 0 {
		c.Settlement.SweepMinAge = 10 * time.Minute
	}
	if c.Settlement.ReconcileMinAge <= 0 {
		c.Settlement.ReconcileMinAge = 30 * time.Minute
	}
	if c.Settlement.SweepBatch <= 0 {
		c.Settlement.SweepBatch = 50
	}
	if c.Settlement.StaleClaimAge <= 0 {
		c.Settlement.StaleClaimAge = 15 * time.Minute
	}
	if c.Kafka.BalanceTopic == "" {
		c.Kafka.BalanceTopic = "payee.balance.changed"
	}
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			OpenAPIPath:       getEnv("HTTP_OPENAPI_PATH", "./api/openapi.yml"),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Processor: ProcessorConfig{
			Mode:           getEnv("PROCESSOR_MODE", ProcessorModeReal),
			BaseURL:        getEnv("PROCESSOR_BASE_URL", ""),
			Sector:         getEnv("PROCESSOR_SECTOR", ""),
			Password:       getEnv("PROCESSOR_PASSWORD", ""),
			Currency:       getEnv("PROCESSOR_CURRENCY", "643"),
			Timeout:        getEnvAsDuration("PROCESSOR_TIMEOUT", 15*time.Second),
			SuccessURL:     getEnv("PROCESSOR_SUCCESS_URL", ""),
			FailURL:        getEnv("PROCESSOR_FAIL_URL", ""),
			NotifyURL:      getEnv("PROCESSOR_NOTIFY_URL", ""),
			PlatformSdRef:  getEnv("PROCESSOR_PLATFORM_SD_REF", ""),
			BusyErrorCode:  getEnv("PROCESSOR_BUSY_ERROR_CODE", "109"),
			UseOrderPocket: getEnvAsBool("PROCESSOR_USE_ORDER_POCKET", true),
		},
		Settlement: SettlementConfig{
			RelocationDelay:      getEnvAsDuration("SETTLEMENT_RELOCATION_DELAY", 30*time.Second),
			RelocationRetryDelay: getEnvAsDuration("SETTLEMENT_RELOCATION_RETRY_DELAY", 10*time.Second),
			MaxWorkers:           getEnvAsInt("SETTLEMENT_MAX_WORKERS", 10),
			JobQueueSize:         getEnvAsInt("SETTLEMENT_JOB_QUEUE_SIZE", 100),
			SweepInterval:        getEnvAsDuration("SETTLEMENT_SWEEP_INTERVAL", 5*time.Minute),
			SweepMinAge:          getEnvAsDuration("SETTLEMENT_SWEEP_MIN_AGE", 10*time.Minute),
			ReconcileMinAge:      getEnvAsDuration("SETTLEMENT_RECONCILE_MIN_AGE", 30*time.Minute),
			SweepBatch:           getEnvAsInt("SETTLEMENT_SWEEP_BATCH", 50),
			StaleClaimAge:        getEnvAsDuration("SETTLEMENT_STALE_CLAIM_AGE", 15*time.Minute),
		},
		Fees: FeesConfig{
			OutCard: getEnv("FEES_OUT_CARD", ""),
			InCard:  getEnv("FEES_IN_CARD", ""),
			InSBP:   getEnv("FEES_IN_SBP", ""),
		},
		Kafka: KafkaConfig{
			Brokers:      splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			BalanceTopic: getEnv("KAFKA_BALANCE_TOPIC", "payee.balance.changed"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Processor.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("processor config: %v", err))
	}

	if err := c.Settlement.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("settlement config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ProcessorConfig) Validate() error {
	switch c.Mode {
	case ProcessorModeStub:
		return nil
	case ProcessorModeReal:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.Sector == "" {
		return errors.New("sector is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

func (c *SettlementConfig) Validate() error {
	if c.RelocationRetryDelay > c.RelocationDelay {
		return errors.New("relocation_retry_delay must not exceed relocation_delay")
	}
	if c.MaxWorkers < 1 {
		return errors.New("max_workers must be at least 1")
	}
	return nil
}
