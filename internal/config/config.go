// Package config loads settings from an optional .env file, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/checking-account-ledger/internal/storage/mysql"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`

	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Liability LiabilityConfig `yaml:"liability"`
}

type StoreConfig struct {
	Driver        string       `yaml:"driver"`
	PostgresDSN   string       `yaml:"postgres_dsn"`
	MongoURI      string       `yaml:"mongo_uri"`
	MongoDatabase string       `yaml:"mongo_database"`
	MySQL         mysql.Config `yaml:"mysql"`
}

type CacheConfig struct {
	Driver        string        `yaml:"driver"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	Driver          string   `yaml:"driver"`
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	RequestTopic    string   `yaml:"request_topic"`
	CallbackTopic   string   `yaml:"callback_topic"`
	DeadLetterTopic string   `yaml:"dead_letter_topic"`
	GroupID         string   `yaml:"group_id"`
	MaxDeliveries   int      `yaml:"max_deliveries"`
	Concurrency     int      `yaml:"concurrency"`
}

type LedgerConfig struct {
	DefaultOverdraftLimit decimal.Decimal `yaml:"default_overdraft_limit"`
	MaxCASRetries         uint            `yaml:"max_cas_retries"`
}

type LiabilityConfig struct {
	// URL of a remote liability validator; empty means the in-process one.
	URL string `yaml:"url"`
}

// Default returns the settings of a single in-memory process.
func Default() Config {
	return Config{
		Env:      "production",
		LogLevel: "info",
		HTTPAddr: ":8080",
		Store: StoreConfig{
			Driver:        DriverMemory,
			MongoDatabase: "ledger",
		},
		Cache: CacheConfig{
			Driver:    DriverMemory,
			RedisAddr: "localhost:6379",
			TTL:       5 * time.Minute,
		},
		Queue: QueueConfig{
			Driver:          DriverMemory,
			KafkaBrokers:    []string{"localhost:9092"},
			RequestTopic:    "account-transactions",
			CallbackTopic:   "client-response",
			DeadLetterTopic: "account-transactions-dlq",
			GroupID:         "ledger-applier",
			MaxDeliveries:   5,
			Concurrency:     4,
		},
		Ledger: LedgerConfig{
			DefaultOverdraftLimit: decimal.NewFromInt(1000),
			MaxCASRetries:         25,
		},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("APP_ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTPAddr)

	str("STORE_DRIVER", &c.Store.Driver)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("MONGO_URI", &c.Store.MongoURI)
	str("MONGO_DATABASE", &c.Store.MongoDatabase)
	str("MYSQL_HOST", &c.Store.MySQL.Host)
	str("MYSQL_USER", &c.Store.MySQL.User)
	str("MYSQL_PASSWORD", &c.Store.MySQL.Password)
	str("MYSQL_DATABASE", &c.Store.MySQL.DBName)

	str("CACHE_DRIVER", &c.Cache.Driver)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)

	str("QUEUE_DRIVER", &c.Queue.Driver)
	str("KAFKA_REQUEST_TOPIC", &c.Queue.RequestTopic)
	str("KAFKA_CALLBACK_TOPIC", &c.Queue.CallbackTopic)
	str("KAFKA_DEAD_LETTER_TOPIC", &c.Queue.DeadLetterTopic)
	str("KAFKA_GROUP_ID", &c.Queue.GroupID)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Queue.KafkaBrokers = splitList(v)
	}

	str("LIABILITY_URL", &c.Liability.URL)

	for key, dst := range map[string]*int{
		"MYSQL_PORT":           &c.Store.MySQL.Port,
		"REDIS_DB":             &c.Cache.RedisDB,
		"QUEUE_MAX_DELIVERIES": &c.Queue.MaxDeliveries,
		"WORKER_CONCURRENCY":   &c.Queue.Concurrency,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("IDEMPOTENCY_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v, ok := lookup("DEFAULT_OVERDRAFT_LIMIT"); ok && v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_OVERDRAFT_LIMIT: %w", err)
		}
		c.Ledger.DefaultOverdraftLimit = d
	}
	if v, ok := lookup("MAX_CAS_RETRIES"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("MAX_CAS_RETRIES: %w", err)
		}
		c.Ledger.MaxCASRetries = uint(n)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value))
	}

	oneOf("store.driver", c.Store.Driver, DriverMemory, DriverPostgres, DriverMongo, DriverMySQL)
	oneOf("cache.driver", c.Cache.Driver, DriverMemory, DriverRedis)
	oneOf("queue.driver", c.Queue.Driver, DriverMemory, DriverKafka)

	if c.Store.Driver == DriverPostgres && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
	}
	if c.Store.Driver == DriverMongo && c.Store.MongoURI == "" {
		errs = append(errs, errors.New("store.mongo_uri is required for the mongo driver"))
	}
	if c.Store.Driver == DriverMySQL && c.Store.MySQL.Host == "" {
		errs = append(errs, errors.New("store.mysql.host is required for the mysql driver"))
	}
	if c.Queue.Driver == DriverKafka && len(c.Queue.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("queue.kafka_brokers is required for the kafka driver"))
	}
	if c.Ledger.DefaultOverdraftLimit.IsNegative() {
		errs = append(errs, errors.New("ledger.default_overdraft_limit must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
