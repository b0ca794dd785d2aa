package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"
	lstypes "chatsync/pkg/logsource/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApplier(source *mockLogSource, uploader *mockUploader, outbox *mockOutbox) *MutationApplier {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	var up Uploader
	if uploader != nil {
		up = uploader
	}
	var ob OutboxStore
	if outbox != nil {
		ob = outbox
	}
	a := NewMutationApplier(source, up, ob, nil, "self", logger)
	a.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return a
}

func groupConv() *models.Conversation {
	return &models.Conversation{
		ID:           "conv1",
		Type:         models.ConversationGroup,
		Participants: []string{"self", "bob", "carol"},
		UnreadCounts: map[string]int64{"bob": 2},
	}
}

func pathsOf(pairs []lstypes.PathValue) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Path
	}
	return out
}

func findPair(t *testing.T, pairs []lstypes.PathValue, path string) lstypes.PathValue {
	t.Helper()
	for _, p := range pairs {
		if p.Path == path {
			return p
		}
	}
	t.Fatalf("no write for path %s, got %v", path, pathsOf(pairs))
	return lstypes.PathValue{}
}

func TestSendTextWrites(t *testing.T) {
	source := newMockLogSource()
	source.conversation = groupConv()
	applier := newTestApplier(source, nil, nil)

	key, err := applier.Send(context.Background(), SendRequest{
		ConversationID: "conv1",
		Text:           "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	pairs := source.lastWrite()
	msgPair := findPair(t, pairs, "messages/conv1/"+string(key))
	msg, ok := msgPair.Value.(models.Message)
	require.True(t, ok)
	assert.Equal(t, "self", msg.SenderID)
	assert.Equal(t, "hello", msg.Text)

	assert.Equal(t, "hello", findPair(t, pairs, "conversations/conv1/lastMessage").Value)
	assert.Equal(t, "self", findPair(t, pairs, "conversations/conv1/lastMessageSenderId").Value)

	// Unread fan-out increments every other participant, never self
	assert.Equal(t, int64(3), findPair(t, pairs, "conversations/conv1/unreadCounts/bob").Value)
	assert.Equal(t, int64(1), findPair(t, pairs, "conversations/conv1/unreadCounts/carol").Value)
	for _, p := range pathsOf(pairs) {
		assert.NotEqual(t, "conversations/conv1/unreadCounts/self", p)
	}
}

func TestSendMediaUploadsAllFirst(t *testing.T) {
	source := newMockLogSource()
	source.conversation = groupConv()
	uploader := &mockUploader{}
	applier := newTestApplier(source, uploader, nil)

	key, err := applier.Send(context.Background(), SendRequest{
		ConversationID: "conv1",
		Text:           "three pics",
		MediaPaths:     []string{"a.jpg", "b.jpg", "c.jpg"},
	})
	require.NoError(t, err)

	pairs := source.lastWrite()
	msg := findPair(t, pairs, "messages/conv1/"+string(key)).Value.(models.Message)
	assert.Equal(t, "three pics", msg.Text)
	assert.Equal(t, []string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
		"https://cdn.example.com/c.jpg",
	}, msg.MediaURLs)
}

func TestSendMediaPartialUploadFailurePreservesCompose(t *testing.T) {
	source := newMockLogSource()
	source.conversation = groupConv()
	uploader := &mockUploader{failPath: "b.jpg"}
	outbox := newMockOutbox()
	applier := newTestApplier(source, uploader, outbox)

	_, err := applier.Send(context.Background(), SendRequest{
		ConversationID: "conv1",
		Text:           "three pics",
		MediaPaths:     []string{"a.jpg", "b.jpg", "c.jpg"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))

	// Nothing was written
	assert.Equal(t, 0, source.writeCount())

	// The full compose state survived: all three files and the text
	require.Equal(t, 1, outbox.count())
	record := outbox.only()
	assert.Equal(t, "three pics", record.Text)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, record.MediaPaths)
}

func TestSendWriteFailureParksInOutbox(t *testing.T) {
	source := newMockLogSource()
	source.conversation = groupConv()
	source.writeErr = fmt.Errorf("write refused")
	outbox := newMockOutbox()
	applier := newTestApplier(source, nil, outbox)

	_, err := applier.Send(context.Background(), SendRequest{ConversationID: "conv1", Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, outbox.count())
}

func TestRetrySendReplaysAndClearsOutbox(t *testing.T) {
	source := newMockLogSource()
	source.conversation = groupConv()
	source.writeErr = fmt.Errorf("write refused")
	outbox := newMockOutbox()
	applier := newTestApplier(source, nil, outbox)

	_, err := applier.Send(context.Background(), SendRequest{ConversationID: "conv1", Text: "hi"})
	require.Error(t, err)
	record := outbox.only()

	source.mu.Lock()
	source.writeErr = nil
	source.mu.Unlock()

	key, err := applier.RetrySend(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, 0, outbox.count())
	assert.Equal(t, 1, source.writeCount())
}

func TestSendValidation(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	tests := []struct {
		name string
		req  SendRequest
	}{
		{"empty conversation", SendRequest{Text: "hi"}},
		{"no content", SendRequest{ConversationID: "conv1"}},
		{"oversize text", SendRequest{ConversationID: "conv1", Text: strings.Repeat("a", 70000)}},
		{"media without uploader", SendRequest{ConversationID: "conv1", MediaPaths: []string{"a.jpg"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applier.Send(context.Background(), tt.req)
			assert.Error(t, err)
			assert.Equal(t, 0, source.writeCount())
		})
	}
}

func TestEditMessage(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	own := msgWith("k0001", "self", "tpyo", 1)
	require.NoError(t, applier.EditMessage(context.Background(), "conv1", &own, "typo"))

	pairs := source.lastWrite()
	assert.Equal(t, "typo", findPair(t, pairs, "messages/conv1/k0001/text").Value)
	assert.Equal(t, true, findPair(t, pairs, "messages/conv1/k0001/edited").Value)
}

func TestEditMessageOnlySender(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	other := msgWith("k0001", "bob", "hi", 1)
	err := applier.EditMessage(context.Background(), "conv1", &other, "hijacked")
	require.Error(t, err)
	assert.True(t, errors.IsPermissionDenied(err))
	assert.Equal(t, 0, source.writeCount())
}

func TestDeleteForMe(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	require.NoError(t, applier.DeleteForMe(context.Background(), "conv1", "k0001"))

	pairs := source.lastWrite()
	require.Len(t, pairs, 1)
	assert.Equal(t, "messages/conv1/k0001/deletedFor/self", pairs[0].Path)
	assert.Equal(t, true, pairs[0].Value)
}

func TestDeleteForEveryonePermissions(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	recent := now.Add(-time.Hour).UnixMilli()
	ancient := now.Add(-72 * time.Hour).UnixMilli()

	tests := []struct {
		name    string
		conv    *models.Conversation
		msg     models.Message
		allowed bool
	}{
		{
			name:    "own recent message in group",
			conv:    groupConv(),
			msg:     msgWith("k1", "self", "x", recent),
			allowed: true,
		},
		{
			name:    "own message past the window",
			conv:    groupConv(),
			msg:     msgWith("k1", "self", "x", ancient),
			allowed: false,
		},
		{
			name:    "someone else's message without admin",
			conv:    groupConv(),
			msg:     msgWith("k1", "bob", "x", recent),
			allowed: false,
		},
		{
			name: "admin deletes anything",
			conv: &models.Conversation{
				ID: "conv1", Type: models.ConversationGroup,
				Participants: []string{"self", "bob"},
				Admins:       map[string]bool{"self": true},
			},
			msg:     msgWith("k1", "bob", "x", ancient),
			allowed: true,
		},
		{
			name: "anything goes in a direct chat",
			conv: &models.Conversation{
				ID: "conv1", Type: models.ConversationDirect,
				Participants: []string{"self", "bob"},
			},
			msg:     msgWith("k1", "bob", "x", ancient),
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newMockLogSource()
			applier := newTestApplier(source, nil, nil)

			err := applier.DeleteForEveryone(context.Background(), tt.conv, &tt.msg)
			if tt.allowed {
				require.NoError(t, err)
				pairs := source.lastWrite()
				assert.Nil(t, findPair(t, pairs, "messages/conv1/k1").Value)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsPermissionDenied(err))
				assert.Equal(t, 0, source.writeCount())
			}
		})
	}
}

func TestDeleteForEveryoneClearsPin(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	conv := groupConv()
	conv.PinnedMessages = map[models.MessageKey]bool{"k0001": true}
	msg := msgWith("k0001", "self", "pinned", time.UnixMilli(1_700_000_000_000).Add(-time.Hour).UnixMilli())

	require.NoError(t, applier.DeleteForEveryone(context.Background(), conv, &msg))

	pairs := source.lastWrite()
	require.Len(t, pairs, 2)
	assert.Nil(t, findPair(t, pairs, "messages/conv1/k0001").Value)
	assert.Nil(t, findPair(t, pairs, "conversations/conv1/pinnedMessages/k0001").Value)
}

func TestToggleReactionSequence(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	msg := msgWith("k0001", "bob", "hi", 1)

	apply := func(pairs []lstypes.PathValue) {
		for _, p := range pairs {
			emoji := strings.TrimPrefix(p.Path, "messages/conv1/k0001/reactions/")
			if p.Value == nil {
				delete(msg.Reactions, emoji)
				continue
			}
			if msg.Reactions == nil {
				msg.Reactions = map[string][]string{}
			}
			msg.Reactions[emoji] = p.Value.([]string)
		}
	}

	// 👍 then ❤️ then 👍 again leaves exactly one 👍 from self
	require.NoError(t, applier.ToggleReaction(context.Background(), "conv1", &msg, "👍"))
	apply(source.lastWrite())
	emoji, ok := msg.ReactionBy("self")
	require.True(t, ok)
	assert.Equal(t, "👍", emoji)

	require.NoError(t, applier.ToggleReaction(context.Background(), "conv1", &msg, "❤️"))
	apply(source.lastWrite())
	emoji, ok = msg.ReactionBy("self")
	require.True(t, ok)
	assert.Equal(t, "❤️", emoji)

	require.NoError(t, applier.ToggleReaction(context.Background(), "conv1", &msg, "👍"))
	apply(source.lastWrite())
	emoji, ok = msg.ReactionBy("self")
	require.True(t, ok)
	assert.Equal(t, "👍", emoji)
	assert.Empty(t, msg.Reactions["❤️"])
}

func TestToggleSameEmojiClears(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	msg := msgWith("k0001", "bob", "hi", 1)
	msg.Reactions = map[string][]string{"👍": {"carol", "self"}}

	require.NoError(t, applier.ToggleReaction(context.Background(), "conv1", &msg, "👍"))

	pairs := source.lastWrite()
	require.Len(t, pairs, 1)
	// Self is removed, other reactors are preserved in the list write
	assert.Equal(t, []string{"carol"}, pairs[0].Value)
}

func TestToggleReactionClearsLastReactor(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	msg := msgWith("k0001", "bob", "hi", 1)
	msg.Reactions = map[string][]string{"👍": {"self"}}

	require.NoError(t, applier.ToggleReaction(context.Background(), "conv1", &msg, "👍"))

	pairs := source.lastWrite()
	require.Len(t, pairs, 1)
	// Empty lists are deleted, not written
	assert.Nil(t, pairs[0].Value)
}

func TestPinAppendsSystemMessage(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	require.NoError(t, applier.PinMessage(context.Background(), "conv1", "k0001"))

	pairs := source.lastWrite()
	require.Len(t, pairs, 2)
	assert.Equal(t, true, findPair(t, pairs, "conversations/conv1/pinnedMessages/k0001").Value)

	var sys models.Message
	for _, p := range pairs {
		if strings.HasPrefix(p.Path, "messages/conv1/") {
			sys = p.Value.(models.Message)
		}
	}
	assert.True(t, sys.System)
	assert.Contains(t, sys.Text, "pinned")
}

func TestUnpinClearsEntry(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	require.NoError(t, applier.UnpinMessage(context.Background(), "conv1", "k0001"))

	pairs := source.lastWrite()
	assert.Nil(t, findPair(t, pairs, "conversations/conv1/pinnedMessages/k0001").Value)
}

func TestMarkRead(t *testing.T) {
	source := newMockLogSource()
	applier := newTestApplier(source, nil, nil)

	require.NoError(t, applier.MarkRead(context.Background(), "conv1"))

	pairs := source.lastWrite()
	require.Len(t, pairs, 2)
	assert.Nil(t, findPair(t, pairs, "conversations/conv1/unreadCounts/self").Value)
	assert.Nil(t, findPair(t, pairs, "conversations/conv1/unreadMentions/self").Value)
}
