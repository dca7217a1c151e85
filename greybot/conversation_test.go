package greybot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t testing.TB, windowSize int, maxAge time.Duration) *ConversationStore {
	t.Helper()
	return NewConversationStore(windowSize, maxAge, nil)
}

func userMsg(id string, content string, ts time.Time) Message {
	return Message{
		ID:         id,
		AuthorID:   "user-1",
		AuthorName: "someone",
		Content:    content,
		Timestamp:  ts,
	}
}

func TestConversationStoreAppendAndRecent(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)
	now := time.Now()

	store.Append("chan-1", userMsg("1", "hello", now))
	store.Append("chan-1", userMsg("2", "world", now.Add(time.Second)))

	recent := store.Recent("chan-1")
	require.Len(t, recent, 2)
	assert.Equal(t, "hello", recent[0].Content)
	assert.Equal(t, "world", recent[1].Content)

	// a different conversation is independent
	assert.Empty(t, store.Recent("chan-2"))
	assert.Equal(t, 1, store.ConversationCount())
}

func TestConversationStoreCountBound(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)
	now := time.Now()

	for i := 0; i < 25; i++ {
		store.Append(
			"chan-1",
			userMsg(
				fmt.Sprintf("%d", i),
				fmt.Sprintf("message %d", i),
				now.Add(time.Duration(i)*time.Second),
			),
		)
	}

	recent := store.Recent("chan-1")
	require.Len(t, recent, 10)

	// the newest 10 survive, oldest first
	assert.Equal(t, "15", recent[0].ID)
	assert.Equal(t, "24", recent[9].ID)
}

func TestConversationStoreAgeBound(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)

	current := time.Now()
	store.now = func() time.Time { return current }

	store.Append("chan-1", userMsg("old", "stale", current.Add(-25*time.Hour)))
	store.Append("chan-1", userMsg("new", "fresh", current))

	recent := store.Recent("chan-1")
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)

	// entries expire from the read view as time passes, even with
	// no further appends
	current = current.Add(25 * time.Hour)
	assert.Empty(t, store.Recent("chan-1"))
	assert.Equal(t, 0, store.Len("chan-1"))
}

func TestConversationStoreAgeEvictsBeforeCount(t *testing.T) {
	store := newTestStore(t, 3, time.Hour)

	current := time.Now()
	store.now = func() time.Time { return current }

	store.Append("c", userMsg("a", "a", current.Add(-2*time.Hour)))
	store.Append("c", userMsg("b", "b", current.Add(-90*time.Minute)))
	store.Append("c", userMsg("c", "c", current.Add(-time.Minute)))
	store.Append("c", userMsg("d", "d", current))

	recent := store.Recent("c")
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)
}

func TestConversationStoreLastBotReply(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)
	now := time.Now()

	assert.True(t, store.LastBotReply("chan-1").IsZero())

	store.Append("chan-1", userMsg("1", "anyone here?", now))
	assert.True(t, store.LastBotReply("chan-1").IsZero())

	botReply := Message{
		ID:        "bot-1",
		AuthorID:  "bot",
		Content:   "I'm here",
		Timestamp: now.Add(time.Second),
		Bot:       true,
	}
	store.Append("chan-1", botReply)
	assert.Equal(t, botReply.Timestamp, store.LastBotReply("chan-1"))
}

func TestConversationStoreClear(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)
	now := time.Now()

	store.Append("chan-1", userMsg("1", "hello", now))
	store.Append(
		"chan-1", Message{
			ID:        "bot-1",
			Content:   "hi",
			Timestamp: now.Add(time.Second),
			Bot:       true,
		},
	)
	require.Equal(t, 2, store.Len("chan-1"))

	store.Clear("chan-1")
	assert.Empty(t, store.Recent("chan-1"))

	// the last-reply marker survives a clear
	assert.False(t, store.LastBotReply("chan-1").IsZero())

	// clearing an unknown conversation is a no-op
	store.Clear("chan-404")
}

func TestConversationStoreNewest(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)

	_, ok := store.Newest("chan-1")
	assert.False(t, ok)

	now := time.Now()
	store.Append("chan-1", userMsg("1", "first", now))
	store.Append("chan-1", userMsg("2", "second", now.Add(time.Second)))

	newest, ok := store.Newest("chan-1")
	require.True(t, ok)
	assert.Equal(t, "2", newest.ID)
}

func TestConversationStoreConcurrentAppend(t *testing.T) {
	store := newTestStore(t, 10, 24*time.Hour)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			channel := fmt.Sprintf("chan-%d", n%5)
			store.Append(
				channel,
				userMsg(fmt.Sprintf("%d", n), "hi", now.Add(time.Duration(n))),
			)
			_ = store.Recent(channel)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.ConversationCount())
	for i := 0; i < 5; i++ {
		assert.Equal(t, 10, store.Len(fmt.Sprintf("chan-%d", i)))
	}
}
