package platformdb

import (
	"fmt"

	"github.com/localchat/chatindex/internal/appletime"
)

// RawMessage is a single row read from the platform message store (§3.1).
type RawMessage struct {
	RowID          int64
	Text           string
	TimestampUnix  int64
	IsFromMe       bool
	HandleID       string
	ChatIdentifier string
	GroupName      string
	Service        string
}

const minAttributedBodyBytes = 10

const messageQuery = `
SELECT
	message.ROWID,
	COALESCE(message.text, ''),
	message.attributedBody,
	message.date,
	message.is_from_me,
	COALESCE(handle.id, ''),
	COALESCE(chat.chat_identifier, ''),
	COALESCE(chat.display_name, ''),
	COALESCE(message.service, '')
FROM message
JOIN chat_message_join ON chat_message_join.message_id = message.ROWID
JOIN chat ON chat_message_join.chat_id = chat.ROWID
LEFT JOIN handle ON message.handle_id = handle.ROWID
WHERE message.ROWID > ?
ORDER BY message.ROWID ASC
`

// ReadMessages streams messages with ROWID strictly greater than
// sinceRowID, ordered ascending by ROWID — never by timestamp, per the
// ordering-correctness requirement of §4.3. If limit > 0 it bounds the
// number of raw rows scanned, not the number of messages returned: rows
// whose text column is empty and whose attributedBody blob is absent, too
// small, or fails extraction are silently dropped from the returned
// slice.
//
// lastScannedRowID is the ROWID of the last row read from the result set
// regardless of whether it survived filtering, and rawCount is the total
// number of rows scanned. Callers MUST advance their read cursor from
// lastScannedRowID and detect end-of-data from rawCount < limit, never
// from len(messages) < limit: an entire limit-sized window can filter
// down to zero surviving messages (e.g. a run of tapback/reaction rows)
// without that meaning there is no more data to read.
func (s *Store) ReadMessages(sinceRowID int64, limit int) (messages []RawMessage, lastScannedRowID int64, rawCount int, err error) {
	query := messageQuery
	args := []interface{}{sinceRowID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rowID          int64
			text           string
			attributedBody []byte
			dateNanos      int64
			isFromMe       bool
			handleID       string
			chatIdent      string
			groupName      string
			service        string
		)
		if err := rows.Scan(&rowID, &text, &attributedBody, &dateNanos, &isFromMe, &handleID, &chatIdent, &groupName, &service); err != nil {
			return nil, lastScannedRowID, rawCount, fmt.Errorf("scanning message row: %w", err)
		}
		rawCount++
		lastScannedRowID = rowID

		if text == "" {
			if len(attributedBody) <= minAttributedBodyBytes {
				continue
			}
			text = extractAttributedBodyText(attributedBody)
			if text == "" {
				continue
			}
		}

		messages = append(messages, RawMessage{
			RowID:          rowID,
			Text:           text,
			TimestampUnix:  appletime.MacToUnix(dateNanos),
			IsFromMe:       isFromMe,
			HandleID:       handleID,
			ChatIdentifier: chatIdent,
			GroupName:      groupName,
			Service:        service,
		})
	}

	return messages, lastScannedRowID, rawCount, rows.Err()
}
