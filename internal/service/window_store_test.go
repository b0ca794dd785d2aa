package service

import (
	"fmt"
	"testing"

	"chatsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeMessages(prefix string, from, to int) []models.Message {
	out := make([]models.Message, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, msgWith(fmt.Sprintf("%s%04d", prefix, i), "alice", fmt.Sprintf("m%d", i), int64(i)))
	}
	return out
}

func keysOf(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Key)
	}
	return out
}

func TestWindowStoreSeedLive(t *testing.T) {
	w := NewWindowStore(10)
	w.SeedLive(makeMessages("k", 1, 5))

	assert.Equal(t, 5, w.Len())
	assert.True(t, w.Contains("k0003"))

	oldest, ok := w.OldestKey()
	require.True(t, ok)
	assert.Equal(t, models.MessageKey("k0001"), oldest)

	newest, ok := w.NewestKey()
	require.True(t, ok)
	assert.Equal(t, models.MessageKey("k0005"), newest)

	// Re-seeding replaces everything
	w.SeedLive(makeMessages("x", 1, 2))
	assert.Equal(t, 2, w.Len())
	assert.False(t, w.Contains("k0001"))
}

func TestWindowStoreNoDuplicateKeys(t *testing.T) {
	w := NewWindowStore(10)
	w.SeedLive(makeMessages("k", 3, 5))

	inserted := w.AppendLive([]models.Message{
		msgWith("k0005", "bob", "dup", 5),
		msgWith("k0006", "bob", "new", 6),
	})
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 4, w.Len())

	// The duplicate did not overwrite the original
	msg, ok := w.Get("k0005")
	require.True(t, ok)
	assert.Equal(t, "alice", msg.SenderID)

	inserted = w.PrependOlder([]models.Message{
		msgWith("k0001", "alice", "old", 1),
		msgWith("k0003", "alice", "dup", 3),
	})
	assert.Equal(t, 1, inserted)
	assert.Equal(t, []string{"k0001", "k0003", "k0004", "k0005", "k0006"}, keysOf(w.Snapshot()))
}

func TestWindowStoreOrderAcrossSegments(t *testing.T) {
	w := NewWindowStore(20)
	w.SeedLive(makeMessages("k", 10, 12))
	w.PrependOlder(makeMessages("k", 5, 9))
	w.AppendLive([]models.Message{msgWith("k0013", "bob", "", 13)})

	assert.Equal(t, []string{
		"k0005", "k0006", "k0007", "k0008", "k0009",
		"k0010", "k0011", "k0012", "k0013",
	}, keysOf(w.Snapshot()))
}

func TestWindowStoreAppendLiveOutOfOrder(t *testing.T) {
	w := NewWindowStore(20)
	w.SeedLive(makeMessages("k", 1, 2))

	// Feed events for different keys carry no ordering guarantee
	w.AppendLive([]models.Message{msgWith("k0005", "bob", "", 5)})
	w.AppendLive([]models.Message{msgWith("k0004", "bob", "", 4)})

	assert.Equal(t, []string{"k0001", "k0002", "k0004", "k0005"}, keysOf(w.Snapshot()))
}

func TestWindowStoreEvictionOldestFirst(t *testing.T) {
	w := NewWindowStore(5)
	w.SeedLive(makeMessages("k", 10, 12))
	w.PrependOlder(makeMessages("k", 5, 9))

	// Cap 5: three older entries are dropped from the head
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, []string{"k0008", "k0009", "k0010", "k0011", "k0012"}, keysOf(w.Snapshot()))
	assert.False(t, w.Contains("k0005"))
	assert.False(t, w.Contains("k0007"))
}

func TestWindowStoreEvictionSpillsIntoLive(t *testing.T) {
	w := NewWindowStore(3)
	w.SeedLive(makeMessages("k", 1, 3))
	w.AppendLive(makeMessages("k", 4, 5))

	// No older segment to evict from, so the live head goes
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []string{"k0003", "k0004", "k0005"}, keysOf(w.Snapshot()))
}

func TestWindowStoreEvictionCleansPresenceSet(t *testing.T) {
	w := NewWindowStore(2)
	w.SeedLive(makeMessages("k", 1, 4))

	assert.Equal(t, 2, w.Len())
	// Evicted keys can be re-inserted later by pagination
	assert.False(t, w.Contains("k0001"))
	inserted := w.AppendLive([]models.Message{msgWith("k0005", "bob", "", 5)})
	assert.Equal(t, 1, inserted)
}

func TestWindowStoreReplaceByKey(t *testing.T) {
	w := NewWindowStore(10)
	w.SeedLive(makeMessages("k", 1, 3))
	w.PrependOlder(makeMessages("j", 1, 2))

	edited := msgWith("k0002", "alice", "edited", 2)
	edited.Edited = true
	require.True(t, w.ReplaceByKey(edited))

	got, ok := w.Get("k0002")
	require.True(t, ok)
	assert.True(t, got.Edited)
	assert.Equal(t, "edited", got.Text)

	// Replacement works in the older segment too
	require.True(t, w.ReplaceByKey(msgWith("j0001", "bob", "swapped", 1)))
	got, ok = w.Get("j0001")
	require.True(t, ok)
	assert.Equal(t, "swapped", got.Text)

	assert.False(t, w.ReplaceByKey(msgWith("absent", "x", "", 0)))
}

func TestWindowStoreRemoveByKey(t *testing.T) {
	w := NewWindowStore(10)
	w.SeedLive(makeMessages("k", 1, 3))

	require.True(t, w.RemoveByKey("k0002"))
	assert.Equal(t, []string{"k0001", "k0003"}, keysOf(w.Snapshot()))
	assert.False(t, w.Contains("k0002"))
	assert.False(t, w.RemoveByKey("k0002"))
}

func TestWindowStoreReset(t *testing.T) {
	w := NewWindowStore(10)
	w.SeedLive(makeMessages("k", 1, 3))
	w.Reset()

	assert.Equal(t, 0, w.Len())
	_, ok := w.OldestKey()
	assert.False(t, ok)
}
