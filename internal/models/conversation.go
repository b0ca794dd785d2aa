package models

// ConversationType distinguishes private 1:1 chats from group chats.
// Delete-for-everyone permission rules differ between the two.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the parent record of a message log. The engine reads it
// to compute send fan-out (unread counters, lastMessage fields) and
// permission checks; it never owns or mutates it outside writeAtomic.
type Conversation struct {
	ID                   string              `json:"id"`
	Type                 ConversationType    `json:"type"`
	Participants         []string            `json:"participants"`
	UnreadCounts         map[string]int64    `json:"unreadCounts,omitempty"`
	UnreadMentions       map[string]int64    `json:"unreadMentions,omitempty"`
	PinnedMessages       map[MessageKey]bool `json:"pinnedMessages,omitempty"`
	Admins               map[string]bool     `json:"admins,omitempty"`
	LastMessage          string              `json:"lastMessage,omitempty"`
	LastMessageTimestamp int64               `json:"lastMessageTimestamp,omitempty"`
	LastMessageSenderID  string              `json:"lastMessageSenderId,omitempty"`
}

// IsAdmin reports whether the given user holds moderator rights.
func (c *Conversation) IsAdmin(userID string) bool {
	return c.Admins[userID]
}

// OtherParticipants returns every participant except the given user,
// preserving the stored order.
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}
