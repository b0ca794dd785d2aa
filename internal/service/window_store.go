package service

import (
	"sort"
	"sync"

	"chatsync/internal/constants"
	"chatsync/internal/models"
)

// WindowStore is the bounded, deduplicated, key-ordered in-memory copy of
// one conversation's message log. It holds two segments: an older segment
// populated by pagination and a live segment populated by the initial
// tail read and the live feed. The concatenation older+live is always
// strictly ascending by key.
//
// The key-presence set is the single source of truth for "is this message
// already represented"; every insertion path consults and updates it.
type WindowStore struct {
	mu      sync.RWMutex
	cap     int
	older   []models.Message
	live    []models.Message
	present map[models.MessageKey]struct{}
}

// NewWindowStore creates a window store with the given size cap.
func NewWindowStore(capacity int) *WindowStore {
	if capacity <= 0 {
		capacity = constants.DefaultWindowCap
	}
	return &WindowStore{
		cap:     capacity,
		present: make(map[models.MessageKey]struct{}),
	}
}

// Len returns the total number of messages across both segments.
func (w *WindowStore) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.older) + len(w.live)
}

// Cap returns the window size cap.
func (w *WindowStore) Cap() int {
	return w.cap
}

// Contains reports whether a message with the given key is present.
func (w *WindowStore) Contains(key models.MessageKey) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.present[key]
	return ok
}

// OldestKey returns the key of the oldest loaded message.
func (w *WindowStore) OldestKey() (models.MessageKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.older) > 0 {
		return w.older[0].Key, true
	}
	if len(w.live) > 0 {
		return w.live[0].Key, true
	}
	return "", false
}

// NewestKey returns the key of the newest loaded message.
func (w *WindowStore) NewestKey() (models.MessageKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.live) > 0 {
		return w.live[len(w.live)-1].Key, true
	}
	if len(w.older) > 0 {
		return w.older[len(w.older)-1].Key, true
	}
	return "", false
}

// Snapshot returns a copy of the ordered read view, older then live.
func (w *WindowStore) Snapshot() []models.Message {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.Message, 0, len(w.older)+len(w.live))
	out = append(out, w.older...)
	out = append(out, w.live...)
	return out
}

// Get returns the message with the given key, if present.
func (w *WindowStore) Get(key models.MessageKey) (models.Message, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i := range w.older {
		if w.older[i].Key == key {
			return w.older[i], true
		}
	}
	for i := range w.live {
		if w.live[i].Key == key {
			return w.live[i], true
		}
	}
	return models.Message{}, false
}

// SeedLive replaces the live segment with the initial tail batch. The
// batch must be sorted ascending by key. Any previous contents are
// discarded; the presence set is rebuilt.
func (w *WindowStore) SeedLive(batch []models.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.older = nil
	w.live = make([]models.Message, 0, len(batch))
	w.present = make(map[models.MessageKey]struct{}, len(batch))
	for _, msg := range batch {
		if _, dup := w.present[msg.Key]; dup {
			continue
		}
		w.live = append(w.live, msg)
		w.present[msg.Key] = struct{}{}
	}
	w.evictLocked()
}

// PrependOlder inserts a pagination batch at the head of the older
// segment. The batch must be sorted ascending by key and already
// deduplicated against the presence set by the caller; any key that
// slipped through is skipped silently. Returns the number inserted.
func (w *WindowStore) PrependOlder(batch []models.Message) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := make([]models.Message, 0, len(batch))
	for _, msg := range batch {
		if _, dup := w.present[msg.Key]; dup {
			continue
		}
		fresh = append(fresh, msg)
		w.present[msg.Key] = struct{}{}
	}
	if len(fresh) == 0 {
		return 0
	}

	w.older = append(fresh, w.older...)
	w.evictLocked()
	return len(fresh)
}

// AppendLive inserts a batch of newly observed live messages into the
// live segment, keeping it key-ordered. Keys already present are skipped
// silently; duplicate delivery is the feed's expected behavior, not an
// error. Returns the number inserted.
func (w *WindowStore) AppendLive(batch []models.Message) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	inserted := 0
	for _, msg := range batch {
		if _, dup := w.present[msg.Key]; dup {
			continue
		}
		// Almost always a straight append; out-of-order feed delivery
		// falls back to a sorted insert.
		if n := len(w.live); n == 0 || w.live[n-1].Key < msg.Key {
			w.live = append(w.live, msg)
		} else {
			i := sort.Search(n, func(i int) bool { return w.live[i].Key > msg.Key })
			w.live = append(w.live, models.Message{})
			copy(w.live[i+1:], w.live[i:])
			w.live[i] = msg
		}
		w.present[msg.Key] = struct{}{}
		inserted++
	}
	if inserted > 0 {
		w.evictLocked()
	}
	return inserted
}

// ReplaceByKey replaces the entry with the same key in whichever segment
// holds it, preserving its position. Returns false if the key is absent.
func (w *WindowStore) ReplaceByKey(msg models.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.older {
		if w.older[i].Key == msg.Key {
			w.older[i] = msg
			return true
		}
	}
	for i := range w.live {
		if w.live[i].Key == msg.Key {
			w.live[i] = msg
			return true
		}
	}
	return false
}

// RemoveByKey removes the entry with the given key from both segments and
// the presence set. Returns false if the key is absent.
func (w *WindowStore) RemoveByKey(key models.MessageKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.present[key]; !ok {
		return false
	}
	delete(w.present, key)

	for i := range w.older {
		if w.older[i].Key == key {
			w.older = append(w.older[:i], w.older[i+1:]...)
			return true
		}
	}
	for i := range w.live {
		if w.live[i].Key == key {
			w.live = append(w.live[:i], w.live[i+1:]...)
			return true
		}
	}
	return false
}

// Reset clears both segments and the presence set.
func (w *WindowStore) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.older = nil
	w.live = nil
	w.present = make(map[models.MessageKey]struct{})
}

// evictLocked trims the window back to the cap, removing from the head of
// the older segment first and only then from the head of the live
// segment. Eviction from the oldest end preserves recency, which is what
// the view scrolls to by default.
func (w *WindowStore) evictLocked() {
	over := len(w.older) + len(w.live) - w.cap
	if over <= 0 {
		return
	}

	if n := len(w.older); n > 0 {
		drop := over
		if drop > n {
			drop = n
		}
		for _, msg := range w.older[:drop] {
			delete(w.present, msg.Key)
		}
		w.older = w.older[drop:]
		over -= drop
	}
	if over > 0 {
		for _, msg := range w.live[:over] {
			delete(w.present, msg.Key)
		}
		w.live = w.live[over:]
	}
}
