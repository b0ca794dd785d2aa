package models

// MessageKey is the opaque, lexicographically sortable key assigned to a
// message by the ordered log source. Key order is chronological order;
// the key never changes after creation.
type MessageKey string

// SendState tags a message with its delivery lifecycle. Messages observed
// through the live feed are always confirmed; pending and failed states
// exist only in the local outbox.
type SendState string

const (
	SendStateConfirmed SendState = "confirmed"
	SendStatePending   SendState = "pending"
	SendStateFailed    SendState = "failed"
)

// ReplySnapshot is a copy of the replied-to message taken at reply time.
// It is not a live link; later edits to the original do not propagate.
type ReplySnapshot struct {
	Key      MessageKey `json:"key,omitempty"`
	SenderID string     `json:"senderId"`
	Text     string     `json:"text"`
}

// ForwardInfo records the provenance of a forwarded message. SenderID may
// be empty when the original sender's privacy settings redact it.
type ForwardInfo struct {
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// Message is one entry in a conversation's ordered log.
//
// Ordering is derived solely from Key; Timestamp is descriptive only and
// may collide or be skewed across writers.
type Message struct {
	Key           MessageKey          `json:"key"`
	SenderID      string              `json:"senderId"`
	Text          string              `json:"text,omitempty"`
	MediaURLs     []string            `json:"mediaUrls,omitempty"`
	StickerRef    string              `json:"stickerRef,omitempty"`
	Timestamp     int64               `json:"timestamp"`
	ReadBy        map[string]int64    `json:"readBy,omitempty"`
	DeletedFor    map[string]bool     `json:"deletedFor,omitempty"`
	Edited        bool                `json:"edited,omitempty"`
	Reactions     map[string][]string `json:"reactions,omitempty"`
	ReplyTo       *ReplySnapshot      `json:"replyTo,omitempty"`
	ForwardedFrom *ForwardInfo        `json:"forwardedFrom,omitempty"`
	Mentions      map[string]bool     `json:"mentions,omitempty"`
	System        bool                `json:"system,omitempty"`
	SendState     SendState           `json:"-"`
}

// IsDeletedFor reports whether the message is soft-deleted from the given
// user's perspective. The row remains visible to other participants.
func (m *Message) IsDeletedFor(userID string) bool {
	return m.DeletedFor[userID]
}

// HasMedia reports whether the message carries any media attachment.
func (m *Message) HasMedia() bool {
	return len(m.MediaURLs) > 0 || m.StickerRef != ""
}

// IsPureMedia reports whether the message is media-only with no caption,
// which is what the presentation grouper coalesces. Sticker-only
// messages count as pure media.
func (m *Message) IsPureMedia() bool {
	return m.HasMedia() && m.Text == "" && !m.System
}

// ReactionBy returns the emoji the given user has reacted with, if any.
// The mutation applier enforces at most one reaction per user.
func (m *Message) ReactionBy(userID string) (string, bool) {
	for emoji, users := range m.Reactions {
		for _, u := range users {
			if u == userID {
				return emoji, true
			}
		}
	}
	return "", false
}
