// Package chunk groups ordered raw messages into conversation chunks (C5)
// and enriches them with sender, chat-kind, temporal, and attachment facets
// (C6).
//
// The teacher's domain has no message-chunking equivalent (it folds/
// summarizes agent reasoning traces, not chat messages, which is a
// summarization algorithm rather than this gap/size-based grouping), so
// this package is built directly from the spec's procedural description in
// the teacher's idiom: small single-purpose structs, table-driven tests,
// no premature abstraction.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/localchat/chatindex/internal/contacts"
	"github.com/localchat/chatindex/internal/platformdb"
)

const (
	maxGapSeconds   = 300
	maxMessages     = 10
	maxChunkChars   = 1000
	maxMessageChars = 2000

	minChunkTextChars     = 20
	minSingleMessageChars = 50

	truncationMarker = " [truncated]"

	ownerDisplayName = "Me"
)

// Chunk is a content-addressed conversation segment (§3.3), transient until
// enriched.
type Chunk struct {
	ID             string
	Text           string
	StartTimestamp int64
	EndTimestamp   int64
	Participants   []string
	ChatIdentifier string
	GroupName      string
	IsGroupChat    bool
	MessageRowIDs  []int64
	MessageCount   int

	// senderLineCount is the number of formatted lines contributed by
	// each sender, used by Enrich to compute the primary sender (§4.6).
	senderLineCount map[string]int
}

// line is one formatted message line awaiting assembly into a chunk.
type line struct {
	rowID     int64
	sender    string
	timestamp int64
	text      string
}

// Split groups a chat's messages (already filtered to a single chat
// identifier) into chunks, sorting by timestamp ascending first. resolver
// maps raw handles to display names; the owner's own messages are always
// labeled "Me" (§4.5).
func Split(messages []platformdb.RawMessage, resolver *contacts.Resolver) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	sorted := make([]platformdb.RawMessage, len(messages))
	copy(sorted, messages)
	sortByTimestamp(sorted)

	var chunks []Chunk
	var current []line
	var groupName string
	var chatIdentifier string

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, buildChunk(current, chatIdentifier, groupName))
		current = nil
	}

	for _, msg := range sorted {
		text := normalizeMessageText(msg.Text)
		if text == "" {
			continue
		}

		sender := ownerDisplayName
		if !msg.IsFromMe {
			sender = resolver.Resolve(msg.HandleID)
		}

		l := line{rowID: msg.RowID, sender: sender, timestamp: msg.TimestampUnix, text: text}

		if len(current) > 0 {
			last := current[len(current)-1]
			gap := l.timestamp - last.timestamp
			wouldOverflowChars := currentTextLen(current)+len(formatLine(l)) >= maxChunkChars
			if gap >= maxGapSeconds || len(current) >= maxMessages || wouldOverflowChars {
				flush()
			}
		}

		if len(current) == 0 {
			chatIdentifier = msg.ChatIdentifier
			groupName = msg.GroupName
		}

		current = append(current, l)
	}
	flush()

	return filterChunks(chunks)
}

func buildChunk(lines []line, chatIdentifier, groupName string) Chunk {
	var sb strings.Builder
	participantSet := make(map[string]struct{})
	senderLineCount := make(map[string]int)
	rowIDs := make([]int64, 0, len(lines))

	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(formatLine(l))
		participantSet[l.sender] = struct{}{}
		senderLineCount[l.sender]++
		rowIDs = append(rowIDs, l.rowID)
	}

	participants := make([]string, 0, len(participantSet))
	for p := range participantSet {
		participants = append(participants, p)
	}

	text := sb.String()
	isGroup := groupName != "" || len(participants) > 2

	return Chunk{
		ID:             hashText(text),
		Text:           text,
		StartTimestamp: lines[0].timestamp,
		EndTimestamp:   lines[len(lines)-1].timestamp,
		Participants:   participants,
		ChatIdentifier: chatIdentifier,
		GroupName:      groupName,
		IsGroupChat:    isGroup,
		MessageRowIDs:  rowIDs,
		MessageCount:   len(lines),

		senderLineCount: senderLineCount,
	}
}

// filterChunks drops chunks that fail the minimum-text-length rules (§4.5).
func filterChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Text) < minChunkTextChars {
			continue
		}
		if c.MessageCount == 1 && len(c.Text) < minSingleMessageChars {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Dedup removes chunks whose id is already present in seen, and records the
// ids of chunks it keeps into seen (§4.5: "this set is also updated
// in-place as a batch proceeds").
func Dedup(chunks []Chunk, seen map[string]struct{}) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func formatLine(l line) string {
	t := time.Unix(l.timestamp, 0).UTC()
	return "[" + l.sender + " " + t.Format("3:04 PM") + "] " + l.text
}

func currentTextLen(lines []line) int {
	n := 0
	for i, l := range lines {
		if i > 0 {
			n++ // newline
		}
		n += len(formatLine(l))
	}
	return n
}

// normalizeMessageText trims, collapses internal whitespace, then truncates
// with an explicit marker beyond maxMessageChars (§4.5).
func normalizeMessageText(raw string) string {
	fields := strings.Fields(raw)
	text := strings.Join(fields, " ")
	if len(text) > maxMessageChars {
		text = text[:maxMessageChars] + truncationMarker
	}
	return text
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func sortByTimestamp(msgs []platformdb.RawMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].TimestampUnix < msgs[j].TimestampUnix
	})
}
