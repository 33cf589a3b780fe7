package vectorstore

import (
	"fmt"
	"time"
)

// ClientConfig configures the Elasticsearch-backed index store. Shape
// (defaults/Validate/ApplyDefaults/retry knobs) mirrors the teacher's
// qdrant.ClientConfig, translated from a gRPC dial target to an HTTP(S)
// endpoint list.
type ClientConfig struct {
	// Addresses are the Elasticsearch node URLs, e.g. ["http://localhost:9200"].
	// Default: ["http://localhost:9200"]
	Addresses []string

	// APIKey authenticates against a secured cluster. Leave empty for
	// local development with security disabled.
	APIKey string

	// IndexName is the single index backing C9. The spec requires a
	// single shard, no replicas, no multi-node layout.
	IndexName string

	// TextDimension and ImageDimension are D_T and D_I, fixed at index
	// creation per §4.9.1.
	TextDimension  int
	ImageDimension int

	// RequestTimeout bounds individual search/index calls.
	// Default: 30 seconds.
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient failures.
	// Default: 3.
	RetryAttempts int

	// BulkFlushDocs and BulkFlushInterval control esutil.BulkIndexer
	// flush behavior. BatchSize default 100 per §4.9.2 is applied via
	// BulkFlushDocs.
	BulkFlushDocs     int
	BulkFlushInterval time.Duration
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Addresses:         []string{"http://localhost:9200"},
		IndexName:         "chat_chunks",
		TextDimension:     384,
		ImageDimension:    512,
		RequestTimeout:    30 * time.Second,
		RetryAttempts:     3,
		BulkFlushDocs:     100,
		BulkFlushInterval: 5 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if len(c.Addresses) == 0 {
		c.Addresses = defaults.Addresses
	}
	if c.IndexName == "" {
		c.IndexName = defaults.IndexName
	}
	if c.TextDimension == 0 {
		c.TextDimension = defaults.TextDimension
	}
	if c.ImageDimension == 0 {
		c.ImageDimension = defaults.ImageDimension
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.BulkFlushDocs == 0 {
		c.BulkFlushDocs = defaults.BulkFlushDocs
	}
	if c.BulkFlushInterval == 0 {
		c.BulkFlushInterval = defaults.BulkFlushInterval
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("%w: at least one address is required", ErrInvalidConfig)
	}
	if c.IndexName == "" {
		return fmt.Errorf("%w: index name is required", ErrInvalidConfig)
	}
	if c.TextDimension <= 0 {
		return fmt.Errorf("%w: text dimension must be > 0", ErrInvalidConfig)
	}
	if c.ImageDimension <= 0 {
		return fmt.Errorf("%w: image dimension must be > 0", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts must be >= 0", ErrInvalidConfig)
	}
	return nil
}
