package models

import "time"

// OutboxRecord preserves the compose state of a failed send so a single
// user gesture can retry it. Media entries are local paths; uploads that
// already succeeded are not re-used, the retry re-uploads everything.
type OutboxRecord struct {
	ID             string
	ConversationID string
	Text           string
	MediaPaths     []string
	StickerRef     string
	ReplyTo        *ReplySnapshot
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
