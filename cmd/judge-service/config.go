package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr         = "0.0.0.0:8080"
	defaultReadTimeout      = 5 * time.Second
	defaultWriteTimeout     = 60 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultKafkaPingTimeout = 5 * time.Second

	defaultStatusTTL     = 24 * time.Hour
	defaultVerdictTopic  = "judge.verdict.final"
	defaultTaskTopic     = "judge.task"
	defaultReportBucket  = "judge-reports"
	defaultAuthIssuer    = "codejudge"
	defaultRunRateWindow = time.Minute
	defaultRunRateIPMax  = 30
	defaultPollUserMax   = 120

	apiKeyEnv = "JUDGE0_API_KEY"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// Judge0Config holds remote judge settings.
type Judge0Config struct {
	BaseURL      string            `yaml:"baseURL"`
	APIKey       string            `yaml:"apiKey"`
	APIHost      string            `yaml:"apiHost"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      time.Duration     `yaml:"timeout"`
	PollAttempts int               `yaml:"pollAttempts"`
	PollInterval time.Duration     `yaml:"pollInterval"`
	JudgeTimeout time.Duration     `yaml:"judgeTimeout"`
	MaxInFlight  int               `yaml:"maxInFlight"`
	SlotWait     time.Duration     `yaml:"slotWait"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	VerdictTopic  string        `yaml:"verdictTopic"`
	TaskTopic     string        `yaml:"taskTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	PrefetchCount int           `yaml:"prefetchCount"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// ReportConfig holds judging report archive settings.
type ReportConfig struct {
	Bucket string `yaml:"bucket"`
}

// AuthConfig holds access token verification settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// RouteRateLimitConfig holds route-level limits. IPMax applies to public
// ad-hoc judging; PollUserMax caps how often a user polls submission status.
type RouteRateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	IPMax       int           `yaml:"ipMax"`
	PollUserMax int           `yaml:"pollUserMax"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RunConfig bounds ad-hoc judging requests.
type RunConfig struct {
	MaxCodeBytes int `yaml:"maxCodeBytes"`
	MaxTestCases int `yaml:"maxTestCases"`
}

// SubmissionConfig holds submit service settings.
type SubmissionConfig struct {
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
	StatusTTL      time.Duration `yaml:"statusTTL"`
	UserMax        int           `yaml:"userMax"`
	IPMax          int           `yaml:"ipMax"`
	Window         time.Duration `yaml:"window"`
	DBTimeout      time.Duration `yaml:"dbTimeout"`
	CacheTimeout   time.Duration `yaml:"cacheTimeout"`
	MQTimeout      time.Duration `yaml:"mqTimeout"`
	StorageTimeout time.Duration `yaml:"storageTimeout"`
	TestCaseTTL    time.Duration `yaml:"testCaseTTL"`
	TestCaseNilTTL time.Duration `yaml:"testCaseEmptyTTL"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server     ServerConfig         `yaml:"server"`
	Logger     logger.Config        `yaml:"logger"`
	Judge0     Judge0Config         `yaml:"judge0"`
	Database   db.MySQLConfig       `yaml:"database"`
	Redis      cache.RedisConfig    `yaml:"redis"`
	Kafka      KafkaConfig          `yaml:"kafka"`
	MinIO      storage.MinIOConfig  `yaml:"minio"`
	Report     ReportConfig         `yaml:"report"`
	Auth       AuthConfig           `yaml:"auth"`
	RateLimit  RouteRateLimitConfig `yaml:"rateLimit"`
	Run        RunConfig            `yaml:"run"`
	Submission SubmissionConfig     `yaml:"submission"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
		cfg.Judge0.APIKey = key
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	applyRedisDefaults(&cfg.Redis)
	applyMySQLDefaults(&cfg.Database)
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.VerdictTopic == "" {
		cfg.Kafka.VerdictTopic = defaultVerdictTopic
	}
	if cfg.Kafka.TaskTopic == "" {
		cfg.Kafka.TaskTopic = defaultTaskTopic
	}
	if cfg.Report.Bucket == "" {
		cfg.Report.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Report.Bucket == "" {
		cfg.Report.Bucket = defaultReportBucket
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = defaultAuthIssuer
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = defaultRunRateWindow
	}
	if cfg.RateLimit.IPMax == 0 {
		cfg.RateLimit.IPMax = defaultRunRateIPMax
	}
	if cfg.RateLimit.PollUserMax == 0 {
		cfg.RateLimit.PollUserMax = defaultPollUserMax
	}
	if cfg.Submission.StatusTTL == 0 {
		cfg.Submission.StatusTTL = defaultStatusTTL
	}
	if cfg.Run.MaxCodeBytes == 0 {
		cfg.Run.MaxCodeBytes = cfg.Submission.MaxCodeBytes
	}
	return &cfg, nil
}

func applyMySQLDefaults(cfg *db.MySQLConfig) {
	defaults := db.DefaultMySQLConfig()
	if cfg.MaxOpenConnections == 0 {
		cfg.MaxOpenConnections = defaults.MaxOpenConnections
	}
	if cfg.MaxIdleConnections == 0 {
		cfg.MaxIdleConnections = defaults.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

// kafkaEnabled reports whether brokers are configured; without them verdict
// events and async judging are disabled.
func (k KafkaConfig) kafkaEnabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		PrefetchCount:   k.PrefetchCount,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
		MessageTTL:      k.MessageTTL,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
