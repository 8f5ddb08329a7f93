// Package config loads Bridge service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the process-wide configuration shared by every Bridge
// service (query service, consumer runtime, outbox relay, lake sink).
type Config struct {
	// Required.
	BrokerBootstrap string // Redis address, e.g. "localhost:6379"
	DBDSN           string

	// Tenancy.
	TenantRegistry []string // registered tenant set
	TenantProfile  string   // optional yaml profile path overriding TenantRegistry

	// Embedding collaborator.
	EmbedModel     string
	EmbedDimension int
	EmbedURL       string
	EmbedTimeout   time.Duration

	// Extractor collaborator.
	ExtractorURL     string
	ExtractorTimeout time.Duration

	// Consumer runtime.
	IngestTopic     string // topic the CSR ingestion producer emits on
	Partitions      int    // partition count per topic, fixed at deploy time
	ConsumerGroup   string
	MaxRedeliveries int
	DLQSuffix       string

	// Outbox relay.
	OutboxBatch int
	OutboxPoll  time.Duration
	OutboxTopic string // topic the metric writer emits on

	// Lake sink.
	LakeFlushBytes   int64
	LakeFlushSeconds int
	LakeBackend      string // "s3", "gcs" or "fs"
	LakeBucket       string
	LakeRegion       string
	LakeEndpoint     string
	LakeDir          string // fs backend root

	// HTTP surface.
	Port      string
	LogLevel  string
	JWTSecret string // empty disables bearer identity
	RateRPS   int
	RateBurst int

	// Observability.
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying the
// documented defaults. Required options missing from the environment are
// reported together so operators fix them in one pass.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		BrokerBootstrap:  os.Getenv("BROKER_BOOTSTRAP"),
		DBDSN:            os.Getenv("DB_DSN"),
		TenantRegistry:   splitCSV(getEnv("TENANT_REGISTRY", "GSG,DEMO,SYSTEM")),
		TenantProfile:    os.Getenv("TENANT_PROFILE"),
		EmbedModel:       getEnv("EMBED_MODEL", "all-MiniLM-L6-v2"),
		EmbedDimension:   getEnvInt("EMBED_DIMENSION", 384),
		EmbedURL:         getEnv("EMBED_URL", "http://localhost:8089/embed"),
		EmbedTimeout:     30 * time.Second,
		ExtractorURL:     getEnv("EXTRACTOR_URL", "http://localhost:8088/extract"),
		ExtractorTimeout: 60 * time.Second,
		IngestTopic:      getEnv("INGEST_TOPIC", "GSG.esg_ingestion--producer__csr@1.events"),
		Partitions:       getEnvInt("PARTITIONS", 4),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", serviceName),
		MaxRedeliveries:  getEnvInt("MAX_REDELIVERIES", 5),
		DLQSuffix:        getEnv("DLQ_SUFFIX", ".dlq"),
		OutboxBatch:      getEnvInt("OUTBOX_BATCH", 100),
		OutboxPoll:       time.Duration(getEnvInt("OUTBOX_POLL_MS", 500)) * time.Millisecond,
		OutboxTopic:      getEnv("OUTBOX_TOPIC", "GSG.esg_metrics--producer__extracted@1.events"),
		LakeFlushBytes:   int64(getEnvInt("LAKE_FLUSH_BYTES", 64<<20)),
		LakeFlushSeconds: getEnvInt("LAKE_FLUSH_SECONDS", 300),
		LakeBackend:      getEnv("LAKE_BACKEND", "fs"),
		LakeBucket:       os.Getenv("LAKE_BUCKET"),
		LakeRegion:       getEnv("LAKE_REGION", os.Getenv("AWS_REGION")),
		LakeEndpoint:     os.Getenv("LAKE_ENDPOINT"),
		LakeDir:          getEnv("LAKE_DIR", "data/lake"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RateRPS:          getEnvInt("RATE_LIMIT_RPS", 50),
		RateBurst:        getEnvInt("RATE_LIMIT_BURST", 100),
		OTLPEndpoint:     os.Getenv("OTLP_ENDPOINT"),
	}

	var missing []string
	if cfg.BrokerBootstrap == "" {
		missing = append(missing, "BROKER_BOOTSTRAP")
	}
	if cfg.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if cfg.Partitions <= 0 {
		return nil, fmt.Errorf("PARTITIONS must be positive, got %d", cfg.Partitions)
	}
	if cfg.EmbedDimension <= 0 {
		return nil, fmt.Errorf("EMBED_DIMENSION must be positive, got %d", cfg.EmbedDimension)
	}
	if len(cfg.TenantRegistry) == 0 {
		return nil, fmt.Errorf("TENANT_REGISTRY must name at least one tenant")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
