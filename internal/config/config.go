package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Upstream    Upstream `yaml:"upstream"`
	Store       Store    `yaml:"store"`
	Import      Import   `yaml:"import"`
	Sync        Sync     `yaml:"sync"`
	LogLevel    string   `yaml:"log_level"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Upstream represents the commerce platform API configuration
type Upstream struct {
	BaseURL        string `yaml:"base_url"`
	AccessToken    string `yaml:"access_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Store represents key-value store configuration
type Store struct {
	Driver        string `yaml:"driver"` // redis or sqlite
	Region        string `yaml:"region"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SQLitePath    string `yaml:"sqlite_path"`
	Tables        Tables `yaml:"tables"`
}

// Tables holds the four destination table names
type Tables struct {
	Orders       string `yaml:"orders"`
	Products     string `yaml:"products"`
	Customers    string `yaml:"customers"`
	SyncMetadata string `yaml:"sync_metadata"`
}

// Import represents object-store configuration for the bulk file importer
type Import struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Sync represents pipeline tuning configuration
type Sync struct {
	PageSize               int `yaml:"page_size"`
	PageRetries            int `yaml:"page_retries"`
	WriteRetries           int `yaml:"write_retries"`
	BatchSize              int `yaml:"batch_size"`
	RetryBackoffMs         int `yaml:"retry_backoff_ms"`
	MaxBackoffMs           int `yaml:"max_backoff_ms"`
	RateLimitDelayMs       int `yaml:"rate_limit_delay_ms"`
	InterBatchDelayMs      int `yaml:"inter_batch_delay_ms"`
	FetchCheckpointPages   int `yaml:"fetch_checkpoint_pages"`
	WriteCheckpointBatches int `yaml:"write_checkpoint_batches"`
}

// Load loads configuration from file, environment and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		Upstream: Upstream{
			TimeoutSeconds: 30,
		},
		Store: Store{
			Driver:     "sqlite",
			Region:     "us-east-1",
			RedisAddr:  "localhost:6379",
			SQLitePath: "./shopsync.db",
			Tables: Tables{
				Orders:       "shop_orders",
				Products:     "shop_products",
				Customers:    "shop_customers",
				SyncMetadata: "shop_sync_metadata",
			},
		},
		Import: Import{
			Bucket: "shop-bulk-import",
			Prefix: "orders/",
			Secure: true,
		},
		Sync: Sync{
			PageSize:               250,
			PageRetries:            5,
			WriteRetries:           5,
			BatchSize:              25,
			RetryBackoffMs:         500,
			MaxBackoffMs:           30000,
			RateLimitDelayMs:       10000,
			InterBatchDelayMs:      200,
			FetchCheckpointPages:   5,
			WriteCheckpointBatches: 10,
		},
		LogLevel: "info",
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	// Override with command line flags
	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	setEnvString(&cfg.Upstream.BaseURL, "UPSTREAM_API_URL")
	setEnvString(&cfg.Upstream.AccessToken, "UPSTREAM_API_TOKEN")

	setEnvString(&cfg.Store.Driver, "STORE_DRIVER")
	setEnvString(&cfg.Store.Region, "STORE_REGION")
	setEnvString(&cfg.Store.RedisAddr, "REDIS_ADDR")
	setEnvString(&cfg.Store.RedisPassword, "REDIS_PASSWORD")
	setEnvInt(&cfg.Store.RedisDB, "REDIS_DB")
	setEnvString(&cfg.Store.SQLitePath, "SQLITE_PATH")

	setEnvString(&cfg.Store.Tables.Orders, "ORDERS_TABLE")
	setEnvString(&cfg.Store.Tables.Products, "PRODUCTS_TABLE")
	setEnvString(&cfg.Store.Tables.Customers, "CUSTOMERS_TABLE")
	setEnvString(&cfg.Store.Tables.SyncMetadata, "SYNC_METADATA_TABLE")

	setEnvString(&cfg.Import.Endpoint, "IMPORT_ENDPOINT")
	setEnvString(&cfg.Import.AccessKey, "IMPORT_ACCESS_KEY")
	setEnvString(&cfg.Import.SecretKey, "IMPORT_SECRET_KEY")
	setEnvString(&cfg.Import.Bucket, "IMPORT_BUCKET")
	setEnvString(&cfg.Import.Prefix, "IMPORT_PREFIX")

	setEnvString(&cfg.LogLevel, "LOG_LEVEL")
	setEnvString(&cfg.MetricsAddr, "METRICS_ADDR")
}

func setEnvString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setEnvInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("api-url") {
		cfg.Upstream.BaseURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("api-token") {
		cfg.Upstream.AccessToken, _ = flags.GetString("api-token")
	}

	if flags.Changed("store-driver") {
		cfg.Store.Driver, _ = flags.GetString("store-driver")
	}
	if flags.Changed("redis-addr") {
		cfg.Store.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("sqlite-path") {
		cfg.Store.SQLitePath, _ = flags.GetString("sqlite-path")
	}

	if flags.Changed("import-endpoint") {
		cfg.Import.Endpoint, _ = flags.GetString("import-endpoint")
	}
	if flags.Changed("import-access-key") {
		cfg.Import.AccessKey, _ = flags.GetString("import-access-key")
	}
	if flags.Changed("import-secret-key") {
		cfg.Import.SecretKey, _ = flags.GetString("import-secret-key")
	}
	if flags.Changed("bucket") {
		cfg.Import.Bucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("prefix") {
		cfg.Import.Prefix, _ = flags.GetString("prefix")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func (c *Config) validate() error {
	if c.Store.Driver != "redis" && c.Store.Driver != "sqlite" {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required")
	}

	if c.Store.Tables.Orders == "" || c.Store.Tables.Products == "" ||
		c.Store.Tables.Customers == "" || c.Store.Tables.SyncMetadata == "" {
		return fmt.Errorf("all four destination table names are required")
	}

	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 250 {
		return fmt.Errorf("page size must be between 1 and 250")
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > 25 {
		return fmt.Errorf("batch size must be between 1 and 25")
	}
	if c.Sync.PageRetries <= 0 || c.Sync.WriteRetries <= 0 {
		return fmt.Errorf("retry counts must be positive")
	}

	return nil
}
