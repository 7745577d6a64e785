// config предоставляет структуру конфигурации comment-tree
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// Значения из файла перекрываются переменными окружения.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Storage  StorageConfig `yaml:"storage"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Tree     TreeConfig    `yaml:"tree"`
	Export   ExportConfig  `yaml:"export"`
	S3       S3Config      `yaml:"s3"`
	Notify   NotifyConfig  `yaml:"notify"`
	Limits   LimitsConfig  `yaml:"limits"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig — публичный REST-сервер (там же /metrics, /livez, /healthz).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// Драйверы хранилища комментариев.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StorageConfig — для driver=memory справочник пользователей и сущностей
// заполняется списками id (локальный запуск без БД).
type StorageConfig struct {
	Driver   string  `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Users    []int64 `yaml:"users" env:"STORAGE_USERS" env-separator:","`
	Pages    []int64 `yaml:"pages" env:"STORAGE_PAGES" env-separator:","`
	Articles []int64 `yaml:"articles" env:"STORAGE_ARTICLES" env-separator:","`
}

type DBConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

// RedisConfig — пустой URL: задачи экспорта хранятся в памяти, уведомления отключены.
type RedisConfig struct {
	URL       string `yaml:"url" env:"REDIS_URL"`
	JobPrefix string `yaml:"job_prefix" env:"REDIS_JOB_PREFIX" env-default:"comment-tree:export:"`
}

// TreeConfig — политика конфликта root и parent при создании ответа.
type TreeConfig struct {
	RootConflict string `yaml:"root_conflict" env:"TREE_ROOT_CONFLICT" env-default:"prefer_parent"`
}

// Брокеры очереди экспорта и хранилища артефактов.
const (
	BrokerMemory = "memory"
	BrokerKafka  = "kafka"

	ArtifactsFilesystem = "filesystem"
	ArtifactsMinio      = "minio"
)

type ExportConfig struct {
	Workers        int           `yaml:"workers" env:"EXPORT_WORKERS" env-default:"4"`
	Topic          string        `yaml:"topic" env:"EXPORT_TOPIC" env-default:"comment_export_jobs"`
	Broker         string        `yaml:"broker" env:"EXPORT_BROKER" env-default:"memory"`
	KafkaNetwork   string        `yaml:"kafka_network" env:"EXPORT_KAFKA_NETWORK" env-default:"tcp"`
	KafkaAddresses []string      `yaml:"kafka_addresses" env:"EXPORT_KAFKA_ADDRESSES" env-separator:","`
	Partitions     int           `yaml:"partitions" env:"EXPORT_PARTITIONS" env-default:"1"`
	Artifacts      string        `yaml:"artifacts" env:"EXPORT_ARTIFACTS" env-default:"filesystem"`
	Dir            string        `yaml:"dir" env:"EXPORT_DIR" env-default:"/tmp/comment-exports"`
	TTL            time.Duration `yaml:"ttl" env:"EXPORT_TTL" env-default:"24h"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"EXPORT_SWEEP_INTERVAL" env-default:"10m"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint" env:"S3_ENDPOINT"`
	RootUser     string `yaml:"root_user" env:"S3_ROOT_USER"`
	RootPassword string `yaml:"root_password" env:"S3_ROOT_PASSWORD"`
	Bucket       string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix       string `yaml:"prefix" env:"S3_PREFIX" env-default:"exports/"`
}

type NotifyConfig struct {
	Enabled       bool   `yaml:"enabled" env:"NOTIFY_ENABLED" env-default:"true"`
	ChannelPrefix string `yaml:"channel_prefix" env:"NOTIFY_CHANNEL_PREFIX" env-default:"notification"`
}

type LimitsConfig struct {
	PageSize int `yaml:"page_size" env:"PAGE_SIZE" env-default:"10"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Request  time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"5s"`
	Notify   time.Duration `yaml:"notify" env:"NOTIFY_TIMEOUT" env-default:"2s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return readFile(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Host == "" {
		return fmt.Errorf("http.host is required")
	}

	if p, err := strconv.Atoi(c.HTTP.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("http.port must be a valid TCP port (1..65535)")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("db.url is required for storage.driver=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q", DriverPostgres, DriverMemory)
	}

	switch c.Tree.RootConflict {
	case "prefer_parent", "reject":
	default:
		return fmt.Errorf("tree.root_conflict must be \"prefer_parent\" or \"reject\"")
	}

	if c.Export.Workers <= 0 {
		return fmt.Errorf("export.workers must be > 0")
	}

	if c.Export.Topic == "" {
		return fmt.Errorf("export.topic is required")
	}

	if c.Export.Partitions <= 0 {
		return fmt.Errorf("export.partitions must be > 0")
	}

	switch c.Export.Broker {
	case BrokerMemory:
	case BrokerKafka:
		if len(c.Export.KafkaAddresses) == 0 {
			return fmt.Errorf("export.kafka_addresses is required for export.broker=kafka")
		}
	default:
		return fmt.Errorf("export.broker must be %q or %q", BrokerMemory, BrokerKafka)
	}

	switch c.Export.Artifacts {
	case ArtifactsFilesystem:
		if c.Export.Dir == "" {
			return fmt.Errorf("export.dir is required for export.artifacts=filesystem")
		}
	case ArtifactsMinio:
		if c.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required")
		}

		if c.S3.RootUser == "" {
			return fmt.Errorf("s3.root_user is required")
		}

		if c.S3.RootPassword == "" {
			return fmt.Errorf("s3.root_password is required")
		}

		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required")
		}
	default:
		return fmt.Errorf("export.artifacts must be %q or %q", ArtifactsFilesystem, ArtifactsMinio)
	}

	if c.Export.TTL < time.Minute {
		return fmt.Errorf("export.ttl must be >= 1m")
	}

	if c.Export.SweepInterval <= 0 {
		return fmt.Errorf("export.sweep_interval must be > 0")
	}

	if c.Limits.PageSize <= 0 {
		return fmt.Errorf("limits.page_size must be > 0")
	}

	if c.Timeouts.Request < 0 || c.Timeouts.Notify < 0 || c.Timeouts.Shutdown < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}

	return nil
}
