package platformdb

import (
	"fmt"
	"os"
	"strings"

	"github.com/localchat/chatindex/internal/appletime"
)

// Attachment is a single row read from the platform attachment store (§3.2).
type Attachment struct {
	RowID          int64
	GUID           string
	Path           string
	MimeType       string
	MessageRowID   int64
	ChatIdentifier string
	CreatedAtUnix  int64
	TransferName   string
	TotalBytes     int64
}

// imageExtensions is the fixed allowlist of file extensions treated as
// images when MIME type is absent or doesn't start with "image/" (§4.4).
var imageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"heic": {},
	"heif": {},
	"webp": {},
	"tiff": {},
	"bmp":  {},
}

const attachmentQueryBase = `
SELECT
	attachment.ROWID,
	COALESCE(attachment.guid, ''),
	COALESCE(attachment.filename, ''),
	COALESCE(attachment.mime_type, ''),
	message_attachment_join.message_id,
	COALESCE(chat.chat_identifier, ''),
	COALESCE(attachment.created_date, 0),
	COALESCE(attachment.transfer_name, ''),
	COALESCE(attachment.total_bytes, 0)
FROM attachment
JOIN message_attachment_join ON message_attachment_join.attachment_id = attachment.ROWID
JOIN chat_message_join ON chat_message_join.message_id = message_attachment_join.message_id
JOIN chat ON chat_message_join.chat_id = chat.ROWID
WHERE attachment.filename IS NOT NULL
`

// isImageAttachment reports whether a MIME type / filename pair qualifies
// as an image per §4.4: MIME begins with "image/", or otherwise the
// filename's extension is in the fixed allowlist.
func isImageAttachment(mimeType, filename string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(extOf(filename), "."))
	_, ok := imageExtensions[ext]
	return ok
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}

func scanAttachmentRows(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]Attachment, error) {
	var out []Attachment
	for rows.Next() {
		var (
			rowID        int64
			guid         string
			filename     string
			mimeType     string
			messageRowID int64
			chatIdent    string
			createdNanos int64
			transferName string
			totalBytes   int64
		)
		if err := rows.Scan(&rowID, &guid, &filename, &mimeType, &messageRowID, &chatIdent, &createdNanos, &transferName, &totalBytes); err != nil {
			return nil, fmt.Errorf("scanning attachment row: %w", err)
		}
		if !isImageAttachment(mimeType, filename) {
			continue
		}
		out = append(out, Attachment{
			RowID:          rowID,
			GUID:           guid,
			Path:           expandTilde(filename),
			MimeType:       mimeType,
			MessageRowID:   messageRowID,
			ChatIdentifier: chatIdent,
			CreatedAtUnix:  appletime.MacToUnix(createdNanos),
			TransferName:   transferName,
			TotalBytes:     totalBytes,
		})
	}
	return out, rows.Err()
}

// ReadImages returns image attachments with attachment.ROWID strictly
// greater than sinceRowID, ordered ascending by ROWID. If limit > 0 it
// bounds the number of rows returned.
func (s *Store) ReadImages(sinceRowID int64, limit int) ([]Attachment, error) {
	query := attachmentQueryBase + " AND attachment.ROWID > ? ORDER BY attachment.ROWID ASC"
	args := []interface{}{sinceRowID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachmentRows(rows)
}

// GetImagesForMessage returns the image attachments joined to a single
// message row id, ordered by attachment.ROWID.
func (s *Store) GetImagesForMessage(messageRowID int64) ([]Attachment, error) {
	query := attachmentQueryBase + " AND message_attachment_join.message_id = ? ORDER BY attachment.ROWID ASC"

	rows, err := s.db.Query(query, messageRowID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments for message: %w", err)
	}
	defer rows.Close()

	return scanAttachmentRows(rows)
}

// expandTilde resolves a leading "~" to the user's home directory (§3.2).
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
