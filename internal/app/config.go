package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// DefaultVoucherID — платёжный ваучер POSIT, если не задан свой.
const DefaultVoucherID = "133337"

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver        string
	PostgresDSN          string
	PostgresAutoMigrate  bool
	PostgresMaxOpenConns int

	// При пустом RedisAddr блокировки по заказу живут в памяти процесса.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	// KafkaConsumeOrders включает чтение событий заказов из Kafka в дополнение к вебхукам.
	KafkaConsumeOrders bool
	KafkaMaxRetries    int
	KafkaRetryDelay    time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	PositAPIKey         string
	PositPOSID          string
	PositTenantURL      string
	PositVoucherID      string
	PositInventoryType  domain.InventoryType
	PositRequestTimeout time.Duration
	PositRateLimit      float64
	PositRateBurst      int

	EnableInventoryInterface bool
	EnableSalesInterface     bool
	OffsetByProcessingOrders bool
	EmailFailedSales         bool

	InventoryInterval time.Duration
	ReportInterval    time.Duration
	ReportLimit       int

	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	EmailFrom         string
	EmailTo           string
	OrderLinkTemplate string
	Timezone          string

	WebhookSecret           string
	AdminToken              string
	DeliveryTTL             time.Duration
	DeliveryCleanupInterval time.Duration
	DeliveryCleanupBatch    int
}

// DefaultConfig возвращает настройки для локального запуска: память, без POSIT и Kafka.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:        StorageDriverMemory,
		PostgresAutoMigrate:  true,
		PostgresMaxOpenConns: 10,

		LockTTL: 2 * time.Minute,

		KafkaClientID:   "posit-sync",
		KafkaGroupID:    "posit-sync",
		KafkaMaxRetries: 3,
		KafkaRetryDelay: 200 * time.Millisecond,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  10,
		OutboxRetryDelay:   time.Second,

		PositVoucherID:      DefaultVoucherID,
		PositInventoryType:  domain.InventoryTypeStore,
		PositRequestTimeout: 10 * time.Second,
		PositRateBurst:      1,

		EnableInventoryInterface: true,
		EnableSalesInterface:     true,
		EmailFailedSales:         true,

		InventoryInterval: time.Hour,
		ReportInterval:    24 * time.Hour,
		ReportLimit:       500,

		SMTPPort: 587,
		Timezone: "UTC",

		DeliveryTTL:             24 * time.Hour,
		DeliveryCleanupInterval: time.Minute,
		DeliveryCleanupBatch:    500,
	}
}

// LoadConfig читает настройки: окружение важнее файла config.{yaml,json,toml}, файл важнее значений по умолчанию.
func LoadConfig(paths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("GRPC_ADDR", d.GRPCAddr)
	v.SetDefault("HTTP_ADDR", d.HTTPAddr)
	v.SetDefault("METRICS_ADDR", d.MetricsAddr)
	v.SetDefault("LOG_LEVEL", d.LogLevel)

	v.SetDefault("STORAGE_DRIVER", d.StorageDriver)
	v.SetDefault("POSTGRES_DSN", d.PostgresDSN)
	v.SetDefault("POSTGRES_AUTO_MIGRATE", d.PostgresAutoMigrate)
	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", d.PostgresMaxOpenConns)

	v.SetDefault("REDIS_ADDR", d.RedisAddr)
	v.SetDefault("REDIS_PASSWORD", d.RedisPassword)
	v.SetDefault("REDIS_DB", d.RedisDB)
	v.SetDefault("LOCK_TTL", d.LockTTL)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_CLIENT_ID", d.KafkaClientID)
	v.SetDefault("KAFKA_GROUP_ID", d.KafkaGroupID)
	v.SetDefault("KAFKA_CONSUME_ORDERS", d.KafkaConsumeOrders)
	v.SetDefault("KAFKA_MAX_RETRIES", d.KafkaMaxRetries)
	v.SetDefault("KAFKA_RETRY_DELAY", d.KafkaRetryDelay)

	v.SetDefault("OUTBOX_POLL_INTERVAL", d.OutboxPollInterval)
	v.SetDefault("OUTBOX_BATCH_SIZE", d.OutboxBatchSize)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", d.OutboxMaxAttempts)
	v.SetDefault("OUTBOX_RETRY_DELAY", d.OutboxRetryDelay)

	v.SetDefault("POSIT_API_KEY", d.PositAPIKey)
	v.SetDefault("POSIT_POS_ID", d.PositPOSID)
	v.SetDefault("POSIT_TENANT_URL", d.PositTenantURL)
	v.SetDefault("POSIT_VOUCHER_ID", d.PositVoucherID)
	v.SetDefault("POSIT_INVENTORY_TYPE", string(d.PositInventoryType))
	v.SetDefault("POSIT_REQUEST_TIMEOUT", d.PositRequestTimeout)
	v.SetDefault("POSIT_RATE_LIMIT", d.PositRateLimit)
	v.SetDefault("POSIT_RATE_BURST", d.PositRateBurst)

	v.SetDefault("ENABLE_INVENTORY_INTERFACE", d.EnableInventoryInterface)
	v.SetDefault("ENABLE_SALES_INTERFACE", d.EnableSalesInterface)
	v.SetDefault("OFFSET_BY_PROCESSING_ORDERS", d.OffsetByProcessingOrders)
	v.SetDefault("EMAIL_FAILED_SALES", d.EmailFailedSales)

	v.SetDefault("INVENTORY_INTERVAL", d.InventoryInterval)
	v.SetDefault("REPORT_INTERVAL", d.ReportInterval)
	v.SetDefault("REPORT_LIMIT", d.ReportLimit)

	v.SetDefault("SMTP_HOST", d.SMTPHost)
	v.SetDefault("SMTP_PORT", d.SMTPPort)
	v.SetDefault("SMTP_USERNAME", d.SMTPUsername)
	v.SetDefault("SMTP_PASSWORD", d.SMTPPassword)
	v.SetDefault("EMAIL_FROM", d.EmailFrom)
	v.SetDefault("EMAIL_TO", d.EmailTo)
	v.SetDefault("ORDER_LINK_TEMPLATE", d.OrderLinkTemplate)
	v.SetDefault("TIMEZONE", d.Timezone)

	v.SetDefault("WEBHOOK_SECRET", d.WebhookSecret)
	v.SetDefault("ADMIN_TOKEN", d.AdminToken)
	v.SetDefault("DELIVERY_TTL", d.DeliveryTTL)
	v.SetDefault("DELIVERY_CLEANUP_INTERVAL", d.DeliveryCleanupInterval)
	v.SetDefault("DELIVERY_CLEANUP_BATCH", d.DeliveryCleanupBatch)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		GRPCAddr:    v.GetString("GRPC_ADDR"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		MetricsAddr: v.GetString("METRICS_ADDR"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		StorageDriver:        strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		PostgresDSN:          strings.TrimSpace(v.GetString("POSTGRES_DSN")),
		PostgresAutoMigrate:  v.GetBool("POSTGRES_AUTO_MIGRATE"),
		PostgresMaxOpenConns: v.GetInt("POSTGRES_MAX_OPEN_CONNS"),

		RedisAddr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		LockTTL:       v.GetDuration("LOCK_TTL"),

		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaClientID:      v.GetString("KAFKA_CLIENT_ID"),
		KafkaGroupID:       v.GetString("KAFKA_GROUP_ID"),
		KafkaConsumeOrders: v.GetBool("KAFKA_CONSUME_ORDERS"),
		KafkaMaxRetries:    v.GetInt("KAFKA_MAX_RETRIES"),
		KafkaRetryDelay:    v.GetDuration("KAFKA_RETRY_DELAY"),

		OutboxPollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
		OutboxMaxAttempts:  v.GetInt("OUTBOX_MAX_ATTEMPTS"),
		OutboxRetryDelay:   v.GetDuration("OUTBOX_RETRY_DELAY"),

		PositAPIKey:         strings.TrimSpace(v.GetString("POSIT_API_KEY")),
		PositPOSID:          strings.TrimSpace(v.GetString("POSIT_POS_ID")),
		PositTenantURL:      strings.TrimSpace(v.GetString("POSIT_TENANT_URL")),
		PositVoucherID:      strings.TrimSpace(v.GetString("POSIT_VOUCHER_ID")),
		PositInventoryType:  domain.InventoryType(strings.TrimSpace(v.GetString("POSIT_INVENTORY_TYPE"))),
		PositRequestTimeout: v.GetDuration("POSIT_REQUEST_TIMEOUT"),
		PositRateLimit:      v.GetFloat64("POSIT_RATE_LIMIT"),
		PositRateBurst:      v.GetInt("POSIT_RATE_BURST"),

		EnableInventoryInterface: v.GetBool("ENABLE_INVENTORY_INTERFACE"),
		EnableSalesInterface:     v.GetBool("ENABLE_SALES_INTERFACE"),
		OffsetByProcessingOrders: v.GetBool("OFFSET_BY_PROCESSING_ORDERS"),
		EmailFailedSales:         v.GetBool("EMAIL_FAILED_SALES"),

		InventoryInterval: v.GetDuration("INVENTORY_INTERVAL"),
		ReportInterval:    v.GetDuration("REPORT_INTERVAL"),
		ReportLimit:       v.GetInt("REPORT_LIMIT"),

		SMTPHost:          strings.TrimSpace(v.GetString("SMTP_HOST")),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUsername:      v.GetString("SMTP_USERNAME"),
		SMTPPassword:      v.GetString("SMTP_PASSWORD"),
		EmailFrom:         strings.TrimSpace(v.GetString("EMAIL_FROM")),
		EmailTo:           strings.TrimSpace(v.GetString("EMAIL_TO")),
		OrderLinkTemplate: v.GetString("ORDER_LINK_TEMPLATE"),
		Timezone:          v.GetString("TIMEZONE"),

		WebhookSecret:           v.GetString("WEBHOOK_SECRET"),
		AdminToken:              v.GetString("ADMIN_TOKEN"),
		DeliveryTTL:             v.GetDuration("DELIVERY_TTL"),
		DeliveryCleanupInterval: v.GetDuration("DELIVERY_CLEANUP_INTERVAL"),
		DeliveryCleanupBatch:    v.GetInt("DELIVERY_CLEANUP_BATCH"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate отклоняет настройки, с которыми сервис не сможет стартовать.
// Пустые ключи POSIT допустимы: сервис работает в degraded-режиме.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if !c.PositInventoryType.Valid() {
		return fmt.Errorf("unsupported POSIT_INVENTORY_TYPE %q", c.PositInventoryType)
	}
	if c.PositRateLimit < 0 {
		return errors.New("POSIT_RATE_LIMIT must not be negative")
	}
	if c.KafkaConsumeOrders && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_CONSUME_ORDERS requires KAFKA_BROKERS")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// PositConfigured сообщает, заданы ли все параметры доступа к POSIT.
func (c Config) PositConfigured() bool {
	return c.PositAPIKey != "" && c.PositPOSID != "" && c.PositTenantURL != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
