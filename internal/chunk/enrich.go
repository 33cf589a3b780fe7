package chunk

import (
	"strings"
	"time"

	"github.com/localchat/chatindex/internal/vectorstore"
)

// Enrich computes the derived fields of §3.4/§4.6 and assembles the index
// document (minus embedding vectors, filled in later by C7/C8). loc is the
// time zone temporal facets are derived in; query-side filters must use the
// same zone (resolved in DESIGN.md: the host process's time.Local).
func Enrich(c Chunk, loc *time.Location, hasAttachment, hasImage bool) vectorstore.Document {
	sender, senderIsMe := primarySender(c.senderLineCount)
	isGroup := c.IsGroupChat

	start := time.Unix(c.StartTimestamp, 0).In(loc)

	doc := vectorstore.Document{
		ID:               c.ID,
		Text:             c.Text,
		ChatID:           c.ChatIdentifier,
		ChatName:         c.GroupName,
		IsGroupChat:      isGroup,
		IsDM:             !isGroup,
		Sender:           sender,
		SenderIsMe:       senderIsMe,
		Participants:     c.Participants,
		ParticipantCount: len(c.Participants),
		StartTimestamp:   c.StartTimestamp,
		EndTimestamp:     c.EndTimestamp,
		Year:             start.Year(),
		Month:            int(start.Month()),
		DayOfWeek:        strings.ToLower(start.Weekday().String()),
		HourOfDay:        start.Hour(),
		HasAttachment:    hasAttachment,
		HasImage:         hasImage,
		MessageRowIDs:    c.MessageRowIDs,
	}

	return doc
}

// primarySender picks the most frequent non-owner sender by line count; if
// every line belongs to the owner, the owner is primary. sender_is_me is
// set when the owner holds a strict majority of lines (§4.6).
func primarySender(lineCount map[string]int) (sender string, senderIsMe bool) {
	total := 0
	best := ""
	bestCount := -1
	for s, n := range lineCount {
		total += n
		if s == ownerDisplayName {
			continue
		}
		if n > bestCount {
			best, bestCount = s, n
		}
	}

	ownerCount := lineCount[ownerDisplayName]
	if best == "" {
		return ownerDisplayName, true
	}

	senderIsMe = total > 0 && ownerCount*2 > total
	return best, senderIsMe
}
