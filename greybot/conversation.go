package greybot

import (
	"log/slog"
	"sync"
	"time"
)

// Message is a single entry in a conversation window. Once appended,
// a Message is never mutated - the derived flags are computed when
// the inbound event is first seen and classified.
type Message struct {
	// ID is the discord message ID (unique per channel)
	ID string `json:"id"`

	// AuthorID is the discord user ID of the sender
	AuthorID string `json:"author_id"`

	// AuthorName is the sender's display name, used when rendering
	// the window as prompt turns
	AuthorName string `json:"author_name"`

	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Bot indicates the message was authored by the bot itself
	Bot bool `json:"bot"`

	// Derived flags, set once at classification time
	IsQuestion    bool `json:"is_question"`
	IsHelpRequest bool `json:"is_help_request"`
	MentionsBot   bool `json:"mentions_bot"`
}

func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", m.ID),
		slog.String("author_id", m.AuthorID),
		slog.String("content", truncate(m.Content, 80)),
		slog.Time("timestamp", m.Timestamp),
		slog.Bool("bot", m.Bot),
	)
}

// conversation is the retained window for a single channel, plus the
// auxiliary state the classifier needs (when the bot last replied).
// Each conversation carries its own mutex, so channels never contend
// with each other - the store-level lock only guards the map itself.
type conversation struct {
	mu           sync.Mutex
	id           string
	messages     []Message
	lastBotReply time.Time
}

// ConversationStore holds the per-channel rolling message windows.
//
// Windows are bounded two ways: by count (WindowSize) for bursty
// channels, and by age (MaxAge) for long-idle ones. Eviction is
// oldest-first and happens on every append, so a window can never
// exceed either bound. Conversations are created lazily on first
// append and live for the process lifetime.
//
// The zero value is not usable; create one with NewConversationStore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation

	windowSize int
	maxAge     time.Duration
	logger     *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewConversationStore creates an empty store with the given bounds.
func NewConversationStore(
	windowSize int,
	maxAge time.Duration,
	logger *slog.Logger,
) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		conversations: map[string]*conversation{},
		windowSize:    windowSize,
		maxAge:        maxAge,
		logger:        logger.With(loggerNameKey, "conversation_store"),
		now:           time.Now,
	}
}

// get returns the conversation for the given ID, creating it if
// needed. Callers lock the returned conversation before touching
// its fields.
func (s *ConversationStore) get(conversationID string) *conversation {
	s.mu.RLock()
	c := s.conversations[conversationID]
	s.mu.RUnlock()
	if c != nil {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c = s.conversations[conversationID]
	if c == nil {
		c = &conversation{id: conversationID}
		s.conversations[conversationID] = c
	}
	return c
}

// Append inserts msg at the end of the conversation's window, then
// evicts from the front: first anything older than the age bound,
// then anything over the count bound. It never fails.
//
// Bot-authored messages also update the conversation's last-reply
// timestamp, which the classifier uses to suppress duplicate
// re-engagement.
func (s *ConversationStore) Append(conversationID string, msg Message) {
	c := s.get(conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	if msg.Bot {
		c.lastBotReply = msg.Timestamp
	}
	s.evict(c)

	s.logger.Debug(
		"appended message",
		"conversation_id", conversationID,
		"message", msg,
		"window_len", len(c.messages),
	)
}

// evict drops expired and excess messages from the front of the
// window. Caller must hold c.mu.
func (s *ConversationStore) evict(c *conversation) {
	cutoff := s.now().Add(-s.maxAge)
	start := 0
	for start < len(c.messages) && c.messages[start].Timestamp.Before(cutoff) {
		start++
	}
	if excess := len(c.messages) - start - s.windowSize; excess > 0 {
		start += excess
	}
	if start > 0 {
		c.messages = append([]Message{}, c.messages[start:]...)
	}
}

// Recent returns a copy of the currently retained window for the
// given conversation, oldest first. Expired entries are filtered
// from the view, so a long-idle window reads as empty even before
// the next append evicts it.
func (s *ConversationStore) Recent(conversationID string) []Message {
	s.mu.RLock()
	c := s.conversations[conversationID]
	s.mu.RUnlock()
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := s.now().Add(-s.maxAge)
	recent := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if !m.Timestamp.Before(cutoff) {
			recent = append(recent, m)
		}
	}
	return recent
}

// Newest returns the most recent retained message in the
// conversation, and whether one exists.
func (s *ConversationStore) Newest(conversationID string) (Message, bool) {
	recent := s.Recent(conversationID)
	if len(recent) == 0 {
		return Message{}, false
	}
	return recent[len(recent)-1], true
}

// LastBotReply returns the timestamp of the bot's most recent reply
// in the conversation (zero time if it has never replied).
func (s *ConversationStore) LastBotReply(conversationID string) time.Time {
	s.mu.RLock()
	c := s.conversations[conversationID]
	s.mu.RUnlock()
	if c == nil {
		return time.Time{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBotReply
}

// Clear empties the conversation's window. The conversation itself
// (and its last-bot-reply marker) remains, so re-engagement
// suppression survives a `!clear`.
func (s *ConversationStore) Clear(conversationID string) {
	s.mu.RLock()
	c := s.conversations[conversationID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Len returns the current retained window length for a conversation.
func (s *ConversationStore) Len(conversationID string) int {
	return len(s.Recent(conversationID))
}

// ConversationCount returns the number of conversations the store
// has seen since startup.
func (s *ConversationStore) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
