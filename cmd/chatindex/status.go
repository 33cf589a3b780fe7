package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/localchat/chatindex/internal/vectorstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report indexing progress and index store health",
	RunE:  runStatus,
}

// indexStats mirrors vectorstore.Stats with the JSON field names the
// status block uses.
type indexStats struct {
	DocumentCount int64 `json:"documentCount"`
	IndexSize     int64 `json:"indexSize"`
}

// messageStats mirrors platformdb.MessageStats with the JSON field names
// the status block uses; dates are rendered as RFC 3339 for readability.
type messageStats struct {
	TotalMessages int64  `json:"totalMessages"`
	MinRowID      int64  `json:"minRowid"`
	MaxRowID      int64  `json:"maxRowid"`
	OldestDate    string `json:"oldestDate,omitempty"`
	NewestDate    string `json:"newestDate,omitempty"`
}

type statusReport struct {
	LastMessageRowID     int64        `json:"lastMessageRowid"`
	LastIndexedAt        string       `json:"lastIndexedAt,omitempty"`
	TotalMessagesIndexed int64        `json:"totalMessagesIndexed"`
	TotalChunksCreated   int64        `json:"totalChunksCreated"`
	IndexStats           indexStats   `json:"indexStats"`
	MessageStats         messageStats `json:"messageStats"`
	PendingMessages      int64        `json:"pendingMessages"`
	IndexHealthy         bool         `json:"indexHealthy"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	state, err := d.state.GetState()
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}

	msgStats, err := d.messages.Stats()
	if err != nil {
		return fmt.Errorf("reading message store stats: %w", err)
	}

	idxStats, statsErr := d.index.GetStats(ctx)
	if statsErr != nil {
		idxStats = &vectorstore.Stats{}
	}

	report := statusReport{
		LastMessageRowID:     state.LastMessageRowID,
		TotalMessagesIndexed: state.TotalMessagesIndexed,
		TotalChunksCreated:   state.TotalChunksCreated,
		IndexStats: indexStats{
			DocumentCount: idxStats.DocumentCount,
			IndexSize:     idxStats.IndexSizeBytes,
		},
		MessageStats: messageStats{
			TotalMessages: msgStats.TotalMessages,
			MinRowID:      msgStats.MinRowID,
			MaxRowID:      msgStats.MaxRowID,
		},
		PendingMessages: msgStats.MaxRowID - state.LastMessageRowID,
		IndexHealthy:    d.indexer.Healthy(),
	}
	if state.LastIndexedAt > 0 {
		report.LastIndexedAt = time.Unix(state.LastIndexedAt, 0).Format(time.RFC3339)
	}
	if msgStats.OldestDate > 0 {
		report.MessageStats.OldestDate = time.Unix(msgStats.OldestDate, 0).Format(time.RFC3339)
	}
	if msgStats.NewestDate > 0 {
		report.MessageStats.NewestDate = time.Unix(msgStats.NewestDate, 0).Format(time.RFC3339)
	}
	if report.PendingMessages < 0 {
		report.PendingMessages = 0
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
