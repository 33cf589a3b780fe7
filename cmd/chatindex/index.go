package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/localchat/chatindex/internal/indexer"
)

var (
	indexFull  bool
	indexLimit int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run one incremental (or full) indexing pass",
	Long: `index reads new messages from the platform message store, chunks and
enriches them, embeds the chunks, and writes them to the index store,
advancing the persisted cursor as each batch commits.

Examples:
  chatindex index
  chatindex index --full
  chatindex index --limit 5000`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexFull, "full", "f", false, "reset the persisted state and index store, then re-index everything")
	indexCmd.Flags().IntVarP(&indexLimit, "limit", "l", 0, "cap the number of messages processed this run (0 = unbounded)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	d, err := initDependencies(ctx, cfg, logger)
	if d != nil {
		defer d.Close()
	}
	if err != nil {
		return err
	}

	result, runErr := d.indexer.Run(ctx, indexer.Config{
		FullReindex: indexFull,
		BatchSize:   cfg.Indexer.BatchSize,
		MaxMessages: indexLimit,
		Location:    time.Local,
	})

	fmt.Printf("messages processed: %d\n", result.MessagesProcessed)
	fmt.Printf("chunks indexed:     %d\n", result.ChunksIndexed)
	fmt.Printf("duration:           %s\n", result.Duration)

	if runErr != nil {
		return fmt.Errorf("indexing stopped short: %w", runErr)
	}
	return nil
}
