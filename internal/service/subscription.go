package service

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	lstypes "chatsync/pkg/logsource/types"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// LogFeed is the slice of the ordered log source the subscription
// manager needs: snapshot reads plus the live change feed.
type LogFeed interface {
	LogReader
	Subscribe(ctx context.Context, conversationID string, fromKey models.MessageKey, handlers lstypes.ChangeHandlers) (lstypes.Subscription, error)
}

// SubscriptionOptions tunes one subscription manager. Zero values fall
// back to the package defaults.
type SubscriptionOptions struct {
	TailSize      int
	WindowCap     int
	PageSize      int
	FlushInterval time.Duration
	Clock         clock.Clock
	// OnUpdate is invoked after every change to the window's read view.
	// The UI layer typically schedules a redraw here.
	OnUpdate func()
	// Resolver, when set, has its mention cache cleared on conversation
	// teardown so cached handles never bleed across conversations.
	Resolver *MentionResolver
}

// SubscriptionManager owns the live feed for one open conversation view.
// Opening a conversation fully replaces the previous one's state; no
// cross-conversation bleed is permitted. Live on-added events are queued
// through the batch coalescer rather than applied immediately, both to
// bound redraw frequency and to avoid reordering against an in-flight
// pagination merge; on-changed and on-removed events apply synchronously.
type SubscriptionManager struct {
	source   LogFeed
	selfID   string
	tailSize int
	logger   *logrus.Logger
	onUpdate func()
	resolver *MentionResolver

	window    *WindowStore
	coalescer *BatchCoalescer
	loader    *PaginationLoader

	mu             sync.Mutex
	conversationID string
	epoch          uint64
	sub            lstypes.Subscription
}

// NewSubscriptionManager creates a subscription manager for the given
// viewer.
func NewSubscriptionManager(source LogFeed, selfID string, opts SubscriptionOptions, logger *logrus.Logger) *SubscriptionManager {
	if opts.TailSize <= 0 {
		opts.TailSize = constants.DefaultInitialTailSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	sm := &SubscriptionManager{
		source:   source,
		selfID:   selfID,
		tailSize: opts.TailSize,
		logger:   logger,
		onUpdate: opts.OnUpdate,
		resolver: opts.Resolver,
		window:   NewWindowStore(opts.WindowCap),
	}
	sm.coalescer = NewBatchCoalescer(opts.Clock, opts.FlushInterval, sm.flushLiveBatch, logger)
	sm.loader = NewPaginationLoader(source, sm.window, selfID, opts.PageSize, logger)
	return sm
}

// Window exposes the ordered read view.
func (s *SubscriptionManager) Window() *WindowStore {
	return s.window
}

// Loader exposes backward pagination for the open conversation.
func (s *SubscriptionManager) Loader() *PaginationLoader {
	return s.loader
}

// ConversationID returns the currently open conversation, if any.
func (s *SubscriptionManager) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Open loads the tail of the conversation's log and attaches the live
// feed. Any previously open conversation is torn down first.
func (s *SubscriptionManager) Open(ctx context.Context, conversationID string) error {
	s.Close()

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.conversationID = conversationID
	s.mu.Unlock()

	raw, err := s.source.ReadRange(ctx, conversationID, lstypes.RangeQuery{
		LimitFromEnd: s.tailSize,
	})
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.conversationID = ""
		}
		s.mu.Unlock()
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to load conversation tail")
	}

	if !s.currentEpoch(epoch) {
		s.logger.WithField("conversation_id", conversationID).Debug("Discarding stale tail read")
		return nil
	}

	batch := make([]models.Message, 0, len(raw))
	for _, msg := range raw {
		if msg.IsDeletedFor(s.selfID) {
			continue
		}
		batch = append(batch, msg)
	}
	s.window.SeedLive(batch)

	// Fewer rows than requested means the whole log is already loaded
	s.loader.Bind(conversationID, len(raw) >= s.tailSize)

	var fromKey models.MessageKey
	if len(raw) > 0 {
		fromKey = raw[len(raw)-1].Key
	}

	if err := s.coalescer.Start(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubscriptionState, "failed to start batch coalescer")
	}

	handlers := lstypes.ChangeHandlers{
		OnAdded: func(msg models.Message) {
			if !s.currentEpoch(epoch) {
				return
			}
			s.handleAdded(msg)
		},
		OnChanged: func(msg models.Message) {
			if !s.currentEpoch(epoch) {
				return
			}
			s.handleChanged(msg)
		},
		OnRemoved: func(key models.MessageKey) {
			if !s.currentEpoch(epoch) {
				return
			}
			s.handleRemoved(key)
		},
	}

	sub, err := s.source.Subscribe(ctx, conversationID, fromKey, handlers)
	if err != nil {
		s.coalescer.Stop()
		s.window.Reset()
		s.loader.Bind("", false)
		s.mu.Lock()
		if s.epoch == epoch {
			s.conversationID = ""
		}
		s.mu.Unlock()
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to attach live feed")
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"seeded":          len(batch),
		"has_more":        s.loader.HasMore(),
	}).Info("Conversation opened")

	s.notify()
	return nil
}

// Close detaches the live listeners and clears all local state. It is
// safe to call when nothing is open.
func (s *SubscriptionManager) Close() {
	s.mu.Lock()
	s.epoch++
	sub := s.sub
	s.sub = nil
	open := s.conversationID
	s.conversationID = ""
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	s.coalescer.Stop()
	s.window.Reset()
	s.loader.Bind("", false)
	if s.resolver != nil {
		s.resolver.Reset()
	}

	if open != "" {
		s.logger.WithField("conversation_id", open).Info("Conversation closed")
	}
}

func (s *SubscriptionManager) currentEpoch(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

func (s *SubscriptionManager) handleAdded(msg models.Message) {
	if msg.IsDeletedFor(s.selfID) {
		return
	}
	if s.window.Contains(msg.Key) {
		// Expected at-least-once delivery, not an error
		s.logger.WithField("key", SanitizeKey(string(msg.Key))).Debug("Ignoring duplicate live add")
		return
	}
	s.coalescer.Enqueue(msg)
}

// handleChanged and handleRemoved consult the coalescer's pending queue
// before the window: an added message can sit there for a full flush
// interval, and a change or removal arriving in that gap targets the
// queued copy, not a window entry.
func (s *SubscriptionManager) handleChanged(msg models.Message) {
	if msg.IsDeletedFor(s.selfID) {
		s.coalescer.Discard(msg.Key)
		if s.window.RemoveByKey(msg.Key) {
			s.notify()
		}
		return
	}
	if s.coalescer.Replace(msg) {
		return
	}
	if s.window.ReplaceByKey(msg) {
		s.notify()
	}
}

func (s *SubscriptionManager) handleRemoved(key models.MessageKey) {
	s.coalescer.Discard(key)
	if s.window.RemoveByKey(key) {
		s.notify()
	}
}

func (s *SubscriptionManager) flushLiveBatch(batch []models.Message) {
	if s.window.AppendLive(batch) > 0 {
		s.notify()
	}
}

func (s *SubscriptionManager) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
