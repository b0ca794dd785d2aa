package service

import (
	"context"
	"fmt"
	"sync"

	"chatsync/internal/models"
	lstypes "chatsync/pkg/logsource/types"
)

// Mock ordered log source covering reads, writes, and the live feed.
type mockLogSource struct {
	mu sync.Mutex

	readRangeResults [][]models.Message
	readRangeErr     error
	readRangeCalls   []lstypes.RangeQuery
	readRangeHook    func()

	conversation *models.Conversation
	convErr      error

	writeErr     error
	writes       [][]lstypes.PathValue
	nextKeySeq   int
	keyPrefix    string
	subscribeErr error
	handlers     lstypes.ChangeHandlers
	subs         []*mockSubscription

	userEntries map[string]*models.MentionEntry
	convEntries map[string]*models.MentionEntry
	lookupErr   error
	userLookups []string
	convLookups []string
}

func newMockLogSource() *mockLogSource {
	return &mockLogSource{
		keyPrefix:   "key",
		userEntries: make(map[string]*models.MentionEntry),
		convEntries: make(map[string]*models.MentionEntry),
	}
}

func (m *mockLogSource) ReadRange(ctx context.Context, conversationID string, q lstypes.RangeQuery) ([]models.Message, error) {
	m.mu.Lock()
	m.readRangeCalls = append(m.readRangeCalls, q)
	var result []models.Message
	if len(m.readRangeResults) > 0 {
		result = m.readRangeResults[0]
		m.readRangeResults = m.readRangeResults[1:]
	}
	err := m.readRangeErr
	hook := m.readRangeHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *mockLogSource) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.convErr != nil {
		return nil, m.convErr
	}
	return m.conversation, nil
}

func (m *mockLogSource) NewKey(conversationID string) models.MessageKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextKeySeq++
	return models.MessageKey(fmt.Sprintf("%s%04d", m.keyPrefix, m.nextKeySeq))
}

func (m *mockLogSource) WriteAtomic(ctx context.Context, pairs []lstypes.PathValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, pairs)
	return nil
}

func (m *mockLogSource) Subscribe(ctx context.Context, conversationID string, fromKey models.MessageKey, handlers lstypes.ChangeHandlers) (lstypes.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	m.handlers = handlers
	sub := &mockSubscription{done: make(chan struct{})}
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *mockLogSource) LookupUserHandle(ctx context.Context, handle string) (*models.MentionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLookups = append(m.userLookups, handle)
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.userEntries[handle], nil
}

func (m *mockLogSource) LookupConversationHandle(ctx context.Context, handle string) (*models.MentionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convLookups = append(m.convLookups, handle)
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.convEntries[handle], nil
}

func (m *mockLogSource) emitAdded(msg models.Message) {
	m.mu.Lock()
	handler := m.handlers.OnAdded
	m.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (m *mockLogSource) emitChanged(msg models.Message) {
	m.mu.Lock()
	handler := m.handlers.OnChanged
	m.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (m *mockLogSource) emitRemoved(key models.MessageKey) {
	m.mu.Lock()
	handler := m.handlers.OnRemoved
	m.mu.Unlock()
	if handler != nil {
		handler(key)
	}
}

func (m *mockLogSource) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockLogSource) lastWrite() []lstypes.PathValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

type mockSubscription struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (s *mockSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *mockSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *mockSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Mock viewport tracking extent and offset for scroll compensation tests.
type mockViewport struct {
	mu     sync.Mutex
	extent float64
	offset float64
}

func (v *mockViewport) ContentExtent() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.extent
}

func (v *mockViewport) ScrollOffset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

func (v *mockViewport) SetScrollOffset(offset float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
}

func (v *mockViewport) grow(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.extent += delta
}

// Mock uploader with per-path failure control.
type mockUploader struct {
	mu       sync.Mutex
	failPath string
	uploaded []string
}

func (u *mockUploader) UploadAsset(ctx context.Context, localPath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failPath != "" && localPath == u.failPath {
		return "", fmt.Errorf("upload refused for %s", localPath)
	}
	u.uploaded = append(u.uploaded, localPath)
	return "https://cdn.example.com/" + localPath, nil
}

// In-memory outbox store.
type mockOutbox struct {
	mu      sync.Mutex
	records map[string]models.OutboxRecord
	saveErr error
}

func newMockOutbox() *mockOutbox {
	return &mockOutbox{records: make(map[string]models.OutboxRecord)}
}

func (o *mockOutbox) SaveRecord(ctx context.Context, record *models.OutboxRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.saveErr != nil {
		return o.saveErr
	}
	o.records[record.ID] = *record
	return nil
}

func (o *mockOutbox) GetRecord(ctx context.Context, id string) (*models.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	record, ok := o.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (o *mockOutbox) ListRecords(ctx context.Context, conversationID string) ([]models.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.OutboxRecord
	for _, record := range o.records {
		if record.ConversationID == conversationID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (o *mockOutbox) DeleteRecord(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.records, id)
	return nil
}

func (o *mockOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

func (o *mockOutbox) only() models.OutboxRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, record := range o.records {
		return record
	}
	return models.OutboxRecord{}
}

func msgWith(key, sender, text string, ts int64) models.Message {
	return models.Message{
		Key:       models.MessageKey(key),
		SenderID:  sender,
		Text:      text,
		Timestamp: ts,
	}
}
