package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ImageStorageDatabase = "database"
	ImageStorageS3       = "s3"
	ImageStorageMinio    = "minio"
	ImageStorageMemory   = "memory"
)

var (
	once    sync.Once
	current *Config
	loadErr error
)

// Config is the full service configuration. Values are resolved as
// defaults, then the optional YAML file, then environment variables.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Migration   MigrationConfig `yaml:"migration"`
	StoreDriver string          `yaml:"storeDriver" env:"STORE_DRIVER"`
	Replica     DatabaseConfig  `yaml:"replica" envPrefix:"REPLICA_DB_"`
	Processed   DatabaseConfig  `yaml:"processed" envPrefix:"PROCESSED_DB_"`
	Storage     StorageConfig   `yaml:"storage"`
	Redis       RedisConfig     `yaml:"redis"`
	Worker      WorkerConfig    `yaml:"worker"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Log         LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	Mode            string        `yaml:"mode" env:"GIN_MODE"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type MigrationConfig struct {
	BatchSize         int           `yaml:"batchSize" env:"BATCH_SIZE"`
	PublicBaseURL     string        `yaml:"publicBaseUrl" env:"PUBLIC_BASE_URL"`
	SyncCron          string        `yaml:"syncCron" env:"SYNC_CRON"`
	SyncActiveOnly    bool          `yaml:"syncActiveOnly" env:"SYNC_ACTIVE_ONLY"`
	ResultRetention   int           `yaml:"resultRetention" env:"RESULT_RETENTION"`
	ErrorMessageLimit int           `yaml:"errorMessageLimit" env:"ERROR_MESSAGE_LIMIT"`
	ProgressLogEvery  int           `yaml:"progressLogEvery" env:"PROGRESS_LOG_EVERY"`
	RunLockKey        string        `yaml:"runLockKey" env:"RUN_LOCK_KEY"`
	RunLockTTL        time.Duration `yaml:"runLockTtl" env:"RUN_LOCK_TTL"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"sslMode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"autoMigrate" env:"AUTO_MIGRATE"`
}

// DSN renders the libpq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type StorageConfig struct {
	Backend string      `yaml:"backend" env:"IMAGE_STORAGE"`
	S3      S3Config    `yaml:"s3"`
	Minio   MinioConfig `yaml:"minio"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	RunStatusTTL time.Duration `yaml:"runStatusTtl" env:"RUN_STATUS_TTL"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	TaskTimeout time.Duration `yaml:"taskTimeout" env:"WORKER_TASK_TIMEOUT"`
	MaxRetry    int           `yaml:"maxRetry" env:"WORKER_MAX_RETRY"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

// Enabled reports whether sync events should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type LogConfig struct {
	Level       string   `yaml:"level" env:"LOG_LEVEL"`
	Encoding    string   `yaml:"encoding" env:"LOG_ENCODING"`
	OutputPaths []string `yaml:"outputPaths" env:"LOG_OUTPUT_PATHS" envSeparator:","`
	MaxSizeMB   int      `yaml:"maxSizeMb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups  int      `yaml:"maxBackups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays  int      `yaml:"maxAgeDays" env:"LOG_MAX_AGE_DAYS"`
}

func defaultDatabase(name string) DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "odoo",
		Name:            name,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	processed := defaultDatabase("slide_api")
	processed.AutoMigrate = true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Migration: MigrationConfig{
			BatchSize:         10,
			PublicBaseURL:     "http://localhost:8080/api/v1",
			SyncCron:          "0 */6 * * *",
			SyncActiveOnly:    true,
			ResultRetention:   1000,
			ErrorMessageLimit: 2000,
			ProgressLogEvery:  50,
			RunLockKey:        "slide-migrator:run-lock",
			RunLockTTL:        30 * time.Minute,
		},
		StoreDriver: StoreDriverPostgres,
		Replica:     defaultDatabase("odoo"),
		Processed:   processed,
		Storage: StorageConfig{
			Backend: ImageStorageDatabase,
			S3:      S3Config{Region: "us-east-1"},
			Minio:   MinioConfig{Endpoint: "localhost:9000", BucketName: "slide-images"},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			RunStatusTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency: 2,
			TaskTimeout: 2 * time.Hour,
			MaxRetry:    1,
		},
		Kafka: KafkaConfig{Topic: "slides.synced"},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  7,
		},
	}
}

// Load resolves the configuration. yamlPath may be empty; CONFIG_FILE is
// consulted in that case.
func Load(yamlPath string) (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()

	if yamlPath == "" {
		yamlPath = os.Getenv("CONFIG_FILE")
	}
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get loads the configuration once per process.
func Get() (*Config, error) {
	once.Do(func() {
		current, loadErr = Load("")
		if loadErr != nil {
			log.Printf("Warning: invalid configuration: %v", loadErr)
		}
	})
	return current, loadErr
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Migration.BatchSize <= 0 {
		problems = append(problems, "BATCH_SIZE must be positive")
	}
	if u, err := url.Parse(c.Migration.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("PUBLIC_BASE_URL %q is not an absolute URL", c.Migration.PublicBaseURL))
	}
	if c.Migration.ResultRetention <= 0 {
		problems = append(problems, "RESULT_RETENTION must be positive")
	}
	if c.Migration.ErrorMessageLimit <= 0 {
		problems = append(problems, "ERROR_MESSAGE_LIMIT must be positive")
	}
	if c.Migration.ProgressLogEvery <= 0 {
		problems = append(problems, "PROGRESS_LOG_EVERY must be positive")
	}
	if c.Migration.RunLockTTL <= 0 {
		problems = append(problems, "RUN_LOCK_TTL must be positive")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.Storage.Backend {
	case ImageStorageDatabase, ImageStorageMemory:
	case ImageStorageS3:
		if c.Storage.S3.BucketName == "" {
			problems = append(problems, "AWS_S3_BUCKET_NAME is required for s3 image storage")
		}
	case ImageStorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "" {
			problems = append(problems, "MINIO_ENDPOINT and MINIO_BUCKET_NAME are required for minio image storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported IMAGE_STORAGE %q", c.Storage.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
