package service

import (
	"fmt"
	"sync"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// FlushFunc receives a drained batch of pending live messages, sorted
// ascending by key.
type FlushFunc func(batch []models.Message)

// BatchCoalescer buffers rapid-fire live insertions and flushes them on a
// fixed interval, trading a little latency for a bounded redraw rate. It
// exists purely to cap redraw frequency under bursty traffic, not for
// correctness. The clock is injected so tests advance virtual time
// instead of sleeping.
type BatchCoalescer struct {
	clk      clock.Clock
	interval time.Duration
	flush    FlushFunc
	logger   *logrus.Logger

	mu      sync.Mutex
	pending []models.Message
	seen    map[models.MessageKey]struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewBatchCoalescer creates a coalescer flushing through fn every
// interval. A zero interval falls back to the default.
func NewBatchCoalescer(clk clock.Clock, interval time.Duration, fn FlushFunc, logger *logrus.Logger) *BatchCoalescer {
	if interval <= 0 {
		interval = constants.DefaultFlushIntervalMs * time.Millisecond
	}
	return &BatchCoalescer{
		clk:      clk,
		interval: interval,
		flush:    fn,
		logger:   logger,
		seen:     make(map[models.MessageKey]struct{}),
	}
}

// Start begins the flush timer.
func (b *BatchCoalescer) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("batch coalescer is already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})

	go b.flushLoop(b.stopCh, b.doneCh)
	return nil
}

// Stop halts the flush timer and discards anything still pending. Pending
// entries are not flushed on stop: stopping happens on conversation close
// or switch, where a late flush would bleed into the next conversation.
func (b *BatchCoalescer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	done := b.doneCh
	b.pending = nil
	b.seen = make(map[models.MessageKey]struct{})
	b.mu.Unlock()

	<-done
}

// Enqueue adds a newly observed live message to the pending batch. A key
// already pending is dropped silently.
func (b *BatchCoalescer) Enqueue(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	if _, dup := b.seen[msg.Key]; dup {
		return
	}
	b.seen[msg.Key] = struct{}{}

	// Sorted insert; bursts arrive nearly ordered so this is a tail append
	n := len(b.pending)
	i := n
	for i > 0 && b.pending[i-1].Key > msg.Key {
		i--
	}
	b.pending = append(b.pending, models.Message{})
	copy(b.pending[i+1:], b.pending[i:])
	b.pending[i] = msg
}

// Discard drops a pending message before it flushes. Returns true if the
// key was pending. A message deleted between its added-event and the
// flush must never reach the window.
func (b *BatchCoalescer) Discard(key models.MessageKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[key]; !ok {
		return false
	}
	delete(b.seen, key)
	for i := range b.pending {
		if b.pending[i].Key == key {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps a pending message for a newer version of itself,
// preserving its queue position. Returns false if the key is not pending.
func (b *BatchCoalescer) Replace(msg models.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[msg.Key]; !ok {
		return false
	}
	for i := range b.pending {
		if b.pending[i].Key == msg.Key {
			b.pending[i] = msg
			return true
		}
	}
	return false
}

// PendingCount returns the number of messages waiting for the next flush.
func (b *BatchCoalescer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *BatchCoalescer) flushLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := b.clk.Ticker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.flushPending()
		}
	}
}

func (b *BatchCoalescer) flushPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.seen = make(map[models.MessageKey]struct{})
	b.mu.Unlock()

	b.logger.WithField("count", len(batch)).Debug("Flushing live batch")
	b.flush(batch)
}
