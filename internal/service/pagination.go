package service

import (
	"context"
	"sync"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	lstypes "chatsync/pkg/logsource/types"

	"github.com/sirupsen/logrus"
)

// LogReader is the slice of the ordered log source the loader needs.
type LogReader interface {
	ReadRange(ctx context.Context, conversationID string, q lstypes.RangeQuery) ([]models.Message, error)
}

// PaginationLoader fetches older pages on demand using a backward key
// cursor and merges them into the window without duplication. It is
// guarded by a re-entrancy flag and a "more available" flag; exhaustion
// is detected by requesting one row more than the page size.
type PaginationLoader struct {
	source   LogReader
	window   *WindowStore
	selfID   string
	pageSize int
	logger   *logrus.Logger

	mu             sync.Mutex
	conversationID string
	loading        bool
	hasMore        bool
}

// NewPaginationLoader creates a loader over the given window.
func NewPaginationLoader(source LogReader, window *WindowStore, selfID string, pageSize int, logger *logrus.Logger) *PaginationLoader {
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	return &PaginationLoader{
		source:   source,
		window:   window,
		selfID:   selfID,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Bind points the loader at a conversation and resets its flags. Results
// of requests still in flight for a previously bound conversation are
// discarded when they settle.
func (p *PaginationLoader) Bind(conversationID string, hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversationID = conversationID
	p.hasMore = hasMore
	p.loading = false
}

// HasMore reports whether older history may still be available.
func (p *PaginationLoader) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// MarkExhausted records that no older history exists.
func (p *PaginationLoader) MarkExhausted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasMore = false
}

// LoadOlder fetches one older page ending at the oldest loaded key and
// merges it in. It is a no-op while another load is running, after
// exhaustion, or on an empty window. The viewport (may be nil) is
// measured before the request and compensated synchronously after the
// merge so the visible content does not jump.
func (p *PaginationLoader) LoadOlder(ctx context.Context, vp Viewport) error {
	p.mu.Lock()
	if p.loading || !p.hasMore || p.conversationID == "" {
		p.mu.Unlock()
		return nil
	}
	oldest, ok := p.window.OldestKey()
	if !ok {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	conversationID := p.conversationID
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	anchor := CaptureScroll(vp)

	// One extra row beyond the page: receiving fewer means history is
	// exhausted. The row at the inclusive bound duplicates the oldest
	// loaded message and is dropped by the presence check below.
	raw, err := p.source.ReadRange(ctx, conversationID, lstypes.RangeQuery{
		EndAtKey:     oldest,
		LimitFromEnd: p.pageSize + 1,
	})

	p.mu.Lock()
	stale := p.conversationID != conversationID
	p.mu.Unlock()
	if stale {
		// Conversation switched while the page was in flight
		p.logger.WithField("conversation_id", conversationID).Debug("Discarding stale pagination result")
		return nil
	}

	if err != nil {
		// Leave hasMore set so the next scroll retries the same page
		p.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to load older page")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to load older messages")
	}

	if len(raw) < p.pageSize+1 {
		p.MarkExhausted()
	}

	batch := make([]models.Message, 0, len(raw))
	for _, msg := range raw {
		if msg.IsDeletedFor(p.selfID) {
			continue
		}
		if p.window.Contains(msg.Key) {
			continue
		}
		batch = append(batch, msg)
	}

	inserted := p.window.PrependOlder(batch)
	anchor.Compensate()

	p.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"fetched":         len(raw),
		"inserted":        inserted,
		"has_more":        p.HasMore(),
	}).Debug("Merged older page")

	return nil
}
