package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var collectionNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MaxCollectionNameLen keeps "<name>_document_id_idx" within the 63 byte
// postgres identifier limit, past which names are silently truncated.
const MaxCollectionNameLen = 63 - len("_document_id_idx")

type Config struct {
	LogConfig   logger.LogConfig  `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Source      SourceConfig      `json:"source"`
	AI          AIConfig          `json:"ai"`
	Retry       RetryConfig       `json:"retry"`
	Server      ServerConfig      `json:"server"`
	Schedule    ScheduleConfig    `json:"schedule"`
}

type DatabaseConfig struct {
	DSN                string `json:"dsn"`
	Host               string `json:"host"`
	Port               int    `json:"port"`
	User               string `json:"user"`
	Password           string `json:"password"`
	DBName             string `json:"dbname"`
	SSLMode            string `json:"sslmode"`
	MaxOpenConns       int    `json:"max_open_conns"`
	MaxIdleConns       int    `json:"max_idle_conns"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	AcquireTimeoutMs   int    `json:"acquire_timeout_ms"`
}

func (c DatabaseConfig) Configured() bool {
	return c.DSN != "" || c.Host != ""
}

type VectorStoreConfig struct {
	Type      string `json:"type"`
	HNSWIndex bool   `json:"hnsw_index"`
}

type PipelineConfig struct {
	CollectionName   string       `json:"collection_name"`
	ChunkSize        int          `json:"chunk_size"`
	ChunkOverlap     int          `json:"chunk_overlap"`
	TopK             int          `json:"top_k"`
	SimilarityMetric model.Metric `json:"similarity_metric"`
	ConcurrencyLimit int          `json:"concurrency_limit"`
	RequireResults   bool         `json:"require_results"`
}

type SourceConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Embedders  []ProviderConfig `json:"embedders"`
	Generators []ProviderConfig `json:"generators"`
	Timeout    int              `json:"timeout"`
	EmbedCache EmbedCacheConfig `json:"embed_cache"`
}

type ProviderConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	LRUTTLSec  int  `json:"lru_ttl_sec"`
	DB         bool `json:"db"`
	MaxAgeDays int  `json:"max_age_days"`
}

type RetryConfig struct {
	MaxAttempts       int `json:"max_attempts"`
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
}

type ServerConfig struct {
	Port              int      `json:"port"`
	JWTSecret         string   `json:"jwt_secret"`
	CORSAllowlist     []string `json:"cors_allowlist"`
	RateLimitWindowMs int      `json:"rate_limit_window_ms"`
}

type ScheduleConfig struct {
	IngestCron       string `json:"ingest_cron"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", appErr.ErrConfiguration, err)
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "postgres"
	}
	switch c.VectorStore.Type {
	case "postgres":
		if !c.Database.Configured() {
			return configErr("database.dsn or database.host is required for postgres vector store")
		}
	case "memory":
	default:
		return configErr("vector_store.type must be postgres or memory")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = c.Database.MaxOpenConns
	}
	if c.Database.AcquireTimeoutMs <= 0 {
		c.Database.AcquireTimeoutMs = 5000
	}

	p := &c.Pipeline
	if p.CollectionName == "" {
		return configErr("pipeline.collection_name is required")
	}
	if err := ValidateCollectionName(p.CollectionName); err != nil {
		return err
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 1024
	}
	if p.ChunkOverlap < 0 {
		return configErr("pipeline.chunk_overlap must not be negative")
	}
	if p.ChunkOverlap >= p.ChunkSize {
		return configErr("pipeline.chunk_overlap must be smaller than pipeline.chunk_size")
	}
	if p.TopK <= 0 {
		p.TopK = 2
	}
	if p.SimilarityMetric == "" {
		p.SimilarityMetric = model.MetricCosine
	}
	if !p.SimilarityMetric.Valid() {
		return configErr("pipeline.similarity_metric must be cosine, dot or l2")
	}
	if p.ConcurrencyLimit <= 0 {
		p.ConcurrencyLimit = 1
	}

	if c.Source.Type == "" {
		c.Source.Type = "local"
	}
	if c.Source.Data == nil && c.Source.Type == "local" {
		c.Source.Data = map[string]interface{}{"dir": "data"}
	}

	if len(c.AI.Embedders) == 0 {
		return configErr("ai.embedders requires at least one provider")
	}
	for i, item := range c.AI.Embedders {
		if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Model) == "" {
			return configErr(fmt.Sprintf("ai.embedders[%d] provider and model are required", i))
		}
	}
	for i, item := range c.AI.Generators {
		if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Model) == "" {
			return configErr(fmt.Sprintf("ai.generators[%d] provider and model are required", i))
		}
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60
	}
	if c.AI.EmbedCache.LRUSize > 0 && c.AI.EmbedCache.LRUTTLSec <= 0 {
		c.AI.EmbedCache.LRUTTLSec = 7200
	}
	if c.AI.EmbedCache.MaxAgeDays <= 0 {
		c.AI.EmbedCache.MaxAgeDays = 30
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialIntervalMs <= 0 {
		c.Retry.InitialIntervalMs = 200
	}
	if c.Retry.MaxIntervalMs <= 0 {
		c.Retry.MaxIntervalMs = 5000
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	return nil
}

func ValidateCollectionName(name string) error {
	if !collectionNameRegex.MatchString(name) {
		return fmt.Errorf("%w: malformed collection name %q", appErr.ErrConfiguration, name)
	}
	if len(name) > MaxCollectionNameLen {
		return fmt.Errorf("%w: collection name %q is longer than %d bytes", appErr.ErrConfiguration, name, MaxCollectionNameLen)
	}
	return nil
}

func configErr(msg string) error {
	return fmt.Errorf("%w: %s", appErr.ErrConfiguration, msg)
}
