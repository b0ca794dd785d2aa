package types

import (
	"context"

	"chatsync/internal/models"
)

// Subscription is an explicit handle on an attached live feed. Close is
// the only teardown path; listeners are never detached by garbage
// collection.
type Subscription interface {
	Close() error
	// Done is closed once the feed has fully stopped dispatching.
	Done() <-chan struct{}
}

// Client is the full ordered log source contract consumed by the engine.
type Client interface {
	// ReadRange returns messages of one conversation in ascending key order.
	ReadRange(ctx context.Context, conversationID string, q RangeQuery) ([]models.Message, error)
	// GetConversation reads the parent conversation record.
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	// NewKey mints a fresh message key that sorts after every previously
	// minted key.
	NewKey(conversationID string) models.MessageKey
	// WriteAtomic applies all pairs together or not at all.
	WriteAtomic(ctx context.Context, pairs []PathValue) error
	// Subscribe attaches live change listeners scoped to keys at or after
	// fromKey. An empty fromKey subscribes to the whole log.
	Subscribe(ctx context.Context, conversationID string, fromKey models.MessageKey, handlers ChangeHandlers) (Subscription, error)
	// LookupUserHandle resolves an @handle against user identities.
	// A nil entry with nil error means not found.
	LookupUserHandle(ctx context.Context, handle string) (*models.MentionEntry, error)
	// LookupConversationHandle resolves an @handle against conversation
	// identities.
	LookupConversationHandle(ctx context.Context, handle string) (*models.MentionEntry, error)
}
