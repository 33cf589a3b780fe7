// Package main implements the chatindex CLI: index, status, verify, and
// search over a local iMessage chat.db export.
//
// Usage:
//
//	chatindex index [--full] [--limit N]
//	chatindex status
//	chatindex verify
//	chatindex search "<natural language query>"
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localchat/chatindex/internal/chatgraph"
	"github.com/localchat/chatindex/internal/config"
	"github.com/localchat/chatindex/internal/contacts"
	"github.com/localchat/chatindex/internal/embeddings"
	"github.com/localchat/chatindex/internal/indexer"
	"github.com/localchat/chatindex/internal/indexstate"
	"github.com/localchat/chatindex/internal/logging"
	"github.com/localchat/chatindex/internal/nlquery"
	"github.com/localchat/chatindex/internal/platformdb"
	"github.com/localchat/chatindex/internal/vectorstore"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chatindex",
	Short:   "Index and search your local iMessage history",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (default ~/.config/chatindex/config.yaml)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(searchCmd)
}

// deps holds every collaborator a subcommand might need. imageEmbed,
// resolver, and parser are nil when their config section leaves them
// unconfigured; callers must check before use.
type deps struct {
	cfg        *config.Config
	logger     *logging.Logger
	messages   *platformdb.Store
	state      *indexstate.Store
	index      vectorstore.Store
	resolver   *contacts.Resolver
	people     *chatgraph.Store
	textEmbed  embeddings.Provider
	imageEmbed *embeddings.ImageEmbedder
	indexer    *indexer.Indexer
	parser     *nlquery.Parser
}

// Close releases every opened resource, best-effort, in reverse
// acquisition order.
func (d *deps) Close() {
	if d.index != nil {
		_ = d.index.Close()
	}
	if d.imageEmbed != nil {
		_ = d.imageEmbed.Close()
	}
	if d.textEmbed != nil {
		_ = d.textEmbed.Close()
	}
	if d.people != nil {
		_ = d.people.Close()
	}
	if d.state != nil {
		_ = d.state.Close()
	}
	if d.messages != nil {
		_ = d.messages.Close()
	}
	if d.logger != nil {
		_ = d.logger.Sync()
	}
}

// loadConfig resolves the layered configuration (defaults, optional file,
// environment) and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// initLogger builds a logging.Logger from cfg.Logging, starting from the
// package's production defaults and overriding the fields the CLI exposes.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Logging.Level, err)
	}
	lcfg.Level = level
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	lcfg.Output.OTEL = cfg.Logging.OTEL

	return logging.NewLogger(lcfg, nil)
}

// initDependencies opens every store and provider named in cfg. Subcommands
// that do not need a given collaborator still pay its open cost today;
// splitting bootstrap per-subcommand was considered and rejected since the
// stores are cheap to open (local SQLite, lazy HTTP clients) relative to
// the duplication it would take to wire each subset separately.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*deps, error) {
	d := &deps{cfg: cfg, logger: logger}

	messages, err := platformdb.Open(cfg.MessageStore.Path)
	if err != nil {
		return d, fmt.Errorf("opening message store %s: %w", cfg.MessageStore.Path, err)
	}
	d.messages = messages

	state, err := indexstate.Open(cfg.State.Path)
	if err != nil {
		return d, fmt.Errorf("opening state store %s: %w", cfg.State.Path, err)
	}
	d.state = state

	people, err := chatgraph.Open(cfg.ChatGraph.Path)
	if err != nil {
		return d, fmt.Errorf("opening chat graph %s: %w", cfg.ChatGraph.Path, err)
	}
	d.people = people

	if cfg.Contacts.Path != "" {
		resolver, err := contacts.Load(cfg.Contacts.Path, logger.Underlying())
		if err != nil {
			logger.Warn(ctx, "contact source unavailable, falling back to raw handles", zapErr(err))
		} else {
			d.resolver = resolver
		}
	}

	textEmbed, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		CacheDir: cfg.Embedding.CacheDir,
	})
	if err != nil {
		return d, fmt.Errorf("initializing text embedder: %w", err)
	}
	d.textEmbed = textEmbed

	imageDim := 512
	if cfg.Embedding.ImageModelPath != "" {
		imageEmbed, err := embeddings.NewImageEmbedder(embeddings.ImageConfig{
			ModelPath:         cfg.Embedding.ImageModelPath,
			LibraryPath:       cfg.Embedding.ImageLibraryPath,
			Dimension:         imageDim,
			RequestsPerSecond: cfg.Embedding.ImageRequestsPerSecond,
		})
		if err != nil {
			return d, fmt.Errorf("initializing image embedder: %w", err)
		}
		d.imageEmbed = imageEmbed
		imageDim = imageEmbed.Dimension()
	}

	vsCfg := &vectorstore.ClientConfig{
		Addresses:         cfg.IndexStore.Addresses,
		APIKey:            cfg.IndexStore.APIKey,
		IndexName:         cfg.IndexStore.IndexName,
		TextDimension:     textEmbed.Dimension(),
		ImageDimension:    imageDim,
		RequestTimeout:    cfg.IndexStore.RequestTimeout,
		RetryAttempts:     cfg.IndexStore.RetryAttempts,
		BulkFlushDocs:     cfg.IndexStore.BulkFlushDocs,
		BulkFlushInterval: cfg.IndexStore.BulkFlushInterval,
	}
	vsCfg.ApplyDefaults()
	if err := vsCfg.Validate(); err != nil {
		return d, fmt.Errorf("invalid index store config: %w", err)
	}
	index, err := vectorstore.NewElasticsearchStore(vsCfg, logger.Underlying())
	if err != nil {
		return d, fmt.Errorf("connecting to index store: %w", err)
	}
	d.index = index

	if err := index.Initialize(ctx); err != nil {
		return d, fmt.Errorf("initializing index: %w", err)
	}

	d.indexer = indexer.New(d.messages, d.state, d.index, d.textEmbed, d.imageEmbed, d.resolver, d.logger)

	if cfg.NLQuery.APIKey != "" {
		d.parser = nlquery.NewParser(nlquery.ParserConfig{
			APIKey: cfg.NLQuery.APIKey,
			Model:  anthropicModel(cfg.NLQuery.Model),
		}, d.logger)
	}

	return d, nil
}

// zapErr wraps an error as a single zap field, for the handful of
// best-effort log calls in initDependencies.
func zapErr(err error) zap.Field {
	return zap.Error(err)
}

// anthropicModel treats an empty configured model name as "use the
// parser's own default" rather than passing an empty Model through to the
// SDK.
func anthropicModel(model string) anthropic.Model {
	if model == "" {
		return ""
	}
	return anthropic.Model(model)
}
