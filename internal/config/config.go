// Package config provides layered configuration loading for chatindex.
//
// Configuration is resolved in precedence order: struct defaults, then an
// optional YAML file, then CHATINDEX_-prefixed environment variables, then
// CLI flags (applied by the caller in cmd/chatindex). Each concern gets its
// own koanf-tagged nested struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete chatindex configuration.
type Config struct {
	MessageStore MessageStoreConfig `koanf:"message_store"`
	Contacts     ContactConfig      `koanf:"contacts"`
	IndexStore   IndexStoreConfig   `koanf:"index_store"`
	Embedding    EmbeddingConfig    `koanf:"embedding"`
	State        StateConfig        `koanf:"state"`
	ChatGraph    ChatGraphConfig    `koanf:"chat_graph"`
	Logging      LoggingConfig      `koanf:"logging"`
	NLQuery      NLQueryConfig      `koanf:"nl_query"`
	Indexer      IndexerConfig      `koanf:"indexer"`
}

// MessageStoreConfig locates the iMessage chat.db (C3/C4).
type MessageStoreConfig struct {
	// Path to chat.db. Default: "~/Library/Messages/chat.db"
	Path string `koanf:"path"`

	// BatchSize must be positive. The indexer's scan size comes from
	// Indexer.BatchSize; this field is not read by the indexer.
	// Default: 500
	BatchSize int `koanf:"batch_size"`
}

// ContactConfig locates the macOS AddressBook database used for contact
// resolution (C2).
type ContactConfig struct {
	// Path to AddressBook-v22.abcddb, empty disables contact resolution
	// and falls back to raw handle identifiers.
	Path string `koanf:"path"`
}

// IndexStoreConfig configures the Elasticsearch-backed hybrid index (C9).
type IndexStoreConfig struct {
	Addresses         []string      `koanf:"addresses"`
	APIKey            string        `koanf:"api_key"`
	IndexName         string        `koanf:"index_name"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	BulkFlushDocs     int           `koanf:"bulk_flush_docs"`
	BulkFlushInterval time.Duration `koanf:"bulk_flush_interval"`
}

// EmbeddingConfig configures the text (C7) and image (C8) embedding
// pipelines.
type EmbeddingConfig struct {
	// Text embedding.
	Provider          string  `koanf:"provider"` // "fastembed" or "tei"
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"` // TEI URL, if provider=tei
	CacheDir          string  `koanf:"cache_dir"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Image embedding.
	ImageModelPath         string  `koanf:"image_model_path"`
	ImageLibraryPath       string  `koanf:"image_library_path"`
	ImageRequestsPerSecond float64 `koanf:"image_requests_per_second"`
}

// StateConfig locates the durable incremental-indexing state store (C10).
type StateConfig struct {
	// Path to the state SQLite database. Default: "~/.chatindex/state.db"
	Path string `koanf:"path"`
}

// ChatGraphConfig locates the chat graph database (C11).
type ChatGraphConfig struct {
	// Path to the chat graph SQLite database. Default: "~/.chatindex/graph.db"
	Path string `koanf:"path"`

	// FuzzyMatchThreshold must lie in [0,1]. The chat graph's fuzzy lookup
	// uses exact and substring matching and does not read it. Default: 0.85
	FuzzyMatchThreshold float64 `koanf:"fuzzy_match_threshold"`
}

// NLQueryConfig configures natural-language query parsing (C13).
type NLQueryConfig struct {
	Model       string  `koanf:"model"` // Anthropic model id
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

// IndexerConfig configures the orchestrator's batching (C12).
type IndexerConfig struct {
	BatchSize       int           `koanf:"batch_size"`
	ChunkTimeGap    time.Duration `koanf:"chunk_time_gap"`
	ChunkMaxMessages int          `koanf:"chunk_max_messages"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // "console" or "json"
	OTEL   bool   `koanf:"otel"`
}

// Load builds a Config from struct defaults overridden by environment
// variables. File and flag layers are applied by the caller via
// LoadWithFile/koanf providers in loader.go; this function supplies the
// base layer.
func Load() *Config {
	home, _ := os.UserHomeDir()

	cfg := &Config{
		MessageStore: MessageStoreConfig{
			Path:      getEnvString("CHATINDEX_MESSAGE_STORE_PATH", filepath.Join(home, "Library", "Messages", "chat.db")),
			BatchSize: getEnvInt("CHATINDEX_MESSAGE_STORE_BATCH_SIZE", 500),
		},
		Contacts: ContactConfig{
			Path: getEnvString("CHATINDEX_CONTACTS_PATH", ""),
		},
		IndexStore: IndexStoreConfig{
			Addresses:         getEnvStringSlice("CHATINDEX_INDEX_STORE_ADDRESSES", []string{"http://localhost:9200"}),
			APIKey:            getEnvString("CHATINDEX_INDEX_STORE_API_KEY", ""),
			IndexName:         getEnvString("CHATINDEX_INDEX_STORE_NAME", "chat_chunks"),
			RequestTimeout:    getEnvDuration("CHATINDEX_INDEX_STORE_REQUEST_TIMEOUT", 30*time.Second),
			RetryAttempts:     getEnvInt("CHATINDEX_INDEX_STORE_RETRY_ATTEMPTS", 3),
			BulkFlushDocs:     getEnvInt("CHATINDEX_INDEX_STORE_BULK_FLUSH_DOCS", 100),
			BulkFlushInterval: getEnvDuration("CHATINDEX_INDEX_STORE_BULK_FLUSH_INTERVAL", 5*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:               getEnvString("CHATINDEX_EMBEDDING_PROVIDER", "fastembed"),
			Model:                  getEnvString("CHATINDEX_EMBEDDING_MODEL", "BAAI/bge-small-en-v1.5"),
			BaseURL:                getEnvString("CHATINDEX_EMBEDDING_BASE_URL", "http://localhost:8080"),
			CacheDir:               getEnvString("CHATINDEX_EMBEDDING_CACHE_DIR", ""),
			RequestsPerSecond:      getEnvFloat("CHATINDEX_EMBEDDING_REQUESTS_PER_SECOND", 5),
			ImageModelPath:         getEnvString("CHATINDEX_EMBEDDING_IMAGE_MODEL_PATH", ""),
			ImageLibraryPath:       getEnvString("CHATINDEX_EMBEDDING_IMAGE_LIBRARY_PATH", ""),
			ImageRequestsPerSecond: getEnvFloat("CHATINDEX_EMBEDDING_IMAGE_REQUESTS_PER_SECOND", 2),
		},
		State: StateConfig{
			Path: getEnvString("CHATINDEX_STATE_PATH", filepath.Join(home, ".chatindex", "state.db")),
		},
		ChatGraph: ChatGraphConfig{
			Path:                getEnvString("CHATINDEX_CHAT_GRAPH_PATH", filepath.Join(home, ".chatindex", "graph.db")),
			FuzzyMatchThreshold: getEnvFloat("CHATINDEX_CHAT_GRAPH_FUZZY_THRESHOLD", 0.85),
		},
		NLQuery: NLQueryConfig{
			Model:       getEnvString("CHATINDEX_NL_QUERY_MODEL", "claude-3-5-haiku-latest"),
			APIKey:      getEnvString("ANTHROPIC_API_KEY", ""),
			Temperature: getEnvFloat("CHATINDEX_NL_QUERY_TEMPERATURE", 0),
		},
		Indexer: IndexerConfig{
			BatchSize:        getEnvInt("CHATINDEX_INDEXER_BATCH_SIZE", 500),
			ChunkTimeGap:     getEnvDuration("CHATINDEX_INDEXER_CHUNK_TIME_GAP", 30*time.Minute),
			ChunkMaxMessages: getEnvInt("CHATINDEX_INDEXER_CHUNK_MAX_MESSAGES", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("CHATINDEX_LOG_LEVEL", "info"),
			Format: getEnvString("CHATINDEX_LOG_FORMAT", "console"),
			OTEL:   getEnvBool("CHATINDEX_LOG_OTEL", false),
		},
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePath(c.MessageStore.Path); err != nil {
		return fmt.Errorf("invalid message_store.path: %w", err)
	}
	if c.MessageStore.BatchSize <= 0 {
		return errors.New("message_store.batch_size must be positive")
	}

	if c.Contacts.Path != "" {
		if err := validatePath(c.Contacts.Path); err != nil {
			return fmt.Errorf("invalid contacts.path: %w", err)
		}
	}

	if len(c.IndexStore.Addresses) == 0 {
		return errors.New("index_store.addresses must have at least one entry")
	}
	for _, addr := range c.IndexStore.Addresses {
		if err := validateURL(addr); err != nil {
			return fmt.Errorf("invalid index_store.addresses entry %q: %w", addr, err)
		}
	}
	if c.IndexStore.IndexName == "" {
		return errors.New("index_store.index_name must not be empty")
	}
	if c.IndexStore.RetryAttempts < 0 {
		return errors.New("index_store.retry_attempts must be non-negative")
	}

	switch c.Embedding.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unsupported embedding.provider: %s (supported: fastembed, tei)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "tei" {
		if err := validateURL(c.Embedding.BaseURL); err != nil {
			return fmt.Errorf("invalid embedding.base_url: %w", err)
		}
	}
	if c.Embedding.CacheDir != "" {
		if err := validatePath(c.Embedding.CacheDir); err != nil {
			return fmt.Errorf("invalid embedding.cache_dir: %w", err)
		}
	}

	if err := validatePath(c.State.Path); err != nil {
		return fmt.Errorf("invalid state.path: %w", err)
	}
	if err := validatePath(c.ChatGraph.Path); err != nil {
		return fmt.Errorf("invalid chat_graph.path: %w", err)
	}
	if c.ChatGraph.FuzzyMatchThreshold < 0 || c.ChatGraph.FuzzyMatchThreshold > 1 {
		return errors.New("chat_graph.fuzzy_match_threshold must be within [0,1]")
	}

	if c.Indexer.BatchSize <= 0 {
		return errors.New("indexer.batch_size must be positive")
	}
	if c.Indexer.ChunkMaxMessages <= 0 {
		return errors.New("indexer.chunk_max_messages must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// Helper functions for environment variable parsing.

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := make([]string, 0)
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// validatePath checks that a path contains no traversal sequences and, for
// absolute paths, does not escape via "..".
func validatePath(path string) error {
	if path == "" {
		return errors.New("path must not be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

// validateURL checks that a URL uses an allowed scheme.
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
