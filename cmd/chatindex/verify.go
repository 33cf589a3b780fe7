package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localchat/chatindex/internal/indexstate"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check counts among the message store, state, and index",
	Long: `verify checks three invariants that an interrupted run or a pagination
bug could break:

  1. the persisted cursor never points past the message store's true max row id
  2. the state store's chunk-count counter matches its recorded chunk hashes
  3. every chunk hash recorded in the state store resolves to a document
     actually present in the index store

Exits nonzero if any check fails.`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	var problems []string

	state, err := d.state.GetState()
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}

	maxRowID, err := d.messages.MaxMessageRowID()
	if err != nil {
		return fmt.Errorf("reading message store max row id: %w", err)
	}
	if state.LastMessageRowID > maxRowID {
		problems = append(problems, fmt.Sprintf(
			"cursor ahead of message store: last_message_rowid=%d > message store max rowid=%d",
			state.LastMessageRowID, maxRowID))
	}

	chunkCount, err := d.state.GetChunkCount()
	if err != nil {
		return fmt.Errorf("reading recorded chunk count: %w", err)
	}
	if chunkCount != state.TotalChunksCreated {
		problems = append(problems, fmt.Sprintf(
			"state counter drift: total_chunks_created=%d but %d chunk records are stored",
			state.TotalChunksCreated, chunkCount))
	}

	records, err := d.state.GetIndexedChunkRecords()
	if err != nil {
		return fmt.Errorf("reading recorded chunks: %w", err)
	}
	var missing []indexstate.ChunkRecord
	for _, r := range records {
		exists, err := d.index.DocumentExists(ctx, r.DocumentID)
		if err != nil {
			return fmt.Errorf("checking document %s for chunk %s: %w", r.DocumentID, r.ChunkHash, err)
		}
		if !exists {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf(
			"index/state drift: %d of %d recorded chunks have no matching document in the index store (first: chunk %s -> document %s)",
			len(missing), len(records), missing[0].ChunkHash, missing[0].DocumentID))
	}

	if len(problems) == 0 {
		fmt.Println("ok: message store, state, and index are consistent")
		return nil
	}

	fmt.Fprintln(os.Stderr, "verification failed:")
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  - %s\n", p)
	}
	return fmt.Errorf("%d consistency check(s) failed", len(problems))
}
