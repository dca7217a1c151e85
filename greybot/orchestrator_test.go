package greybot

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(
	t testing.TB,
	mock *mockOpenAIClient,
) (*Orchestrator, *ConversationStore) {
	t.Helper()
	store := newTestStore(t, 10, 24*time.Hour)
	return newOrchestrator(
		store,
		newTestClassifier(t),
		newTestOpenAI(t, mock),
		nil,
		"bot-user-id",
		"Grey",
		nil,
	), store
}

func TestOrchestratorRespondSuccess(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("42, obviously")}
	o, store := newTestOrchestrator(t, mock)

	msg := userMsg("1", "what's the answer?", time.Now())
	msg.IsQuestion = true
	store.Append("chan-1", msg)

	reply, err := o.Respond(
		context.Background(),
		"chan-1",
		msg,
		EngagementDecision{Respond: true, Reason: ReasonQuestion},
	)
	require.NoError(t, err)
	assert.Equal(t, "42, obviously", reply)

	// exactly one bot message was appended
	recent := store.Recent("chan-1")
	require.Len(t, recent, 2)
	assert.True(t, recent[1].Bot)
	assert.Equal(t, "42, obviously", recent[1].Content)
	assert.Equal(t, "bot-user-id", recent[1].AuthorID)
	assert.Equal(t, "Grey", recent[1].AuthorName)
	assert.False(t, store.LastBotReply("chan-1").IsZero())
}

func TestOrchestratorRespondFailureLeavesStoreUntouched(t *testing.T) {
	mock := &mockOpenAIClient{
		err: &openai.APIError{HTTPStatusCode: 500, Message: "boom"},
	}
	o, store := newTestOrchestrator(t, mock)

	msg := userMsg("1", "what's the answer?", time.Now())
	store.Append("chan-1", msg)
	before := store.Recent("chan-1")

	_, err := o.Respond(
		context.Background(),
		"chan-1",
		msg,
		EngagementDecision{Respond: true, Reason: ReasonQuestion},
	)
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))

	// no phantom turns: the window is exactly what it was
	assert.Equal(t, before, store.Recent("chan-1"))
	assert.True(t, store.LastBotReply("chan-1").IsZero())
}

func TestOrchestratorPromptOrdering(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("sure")}
	o, store := newTestOrchestrator(t, mock)

	now := time.Now()
	first := userMsg("1", "deployed the fix", now)
	store.Append("chan-1", first)
	store.Append(
		"chan-1", Message{
			ID:        "bot-0",
			Content:   "nice work",
			Timestamp: now.Add(time.Second),
			Bot:       true,
		},
	)
	trigger := userMsg("2", "can you summarize what changed?", now.Add(2*time.Second))
	trigger.IsQuestion = true
	store.Append("chan-1", trigger)

	_, err := o.Respond(
		context.Background(),
		"chan-1",
		trigger,
		EngagementDecision{Respond: true, Reason: ReasonQuestion},
	)
	require.NoError(t, err)

	require.Len(t, mock.requests, 1)
	turns := mock.requests[0].Messages
	require.Len(t, turns, 4)

	// system instruction first
	assert.Equal(t, openai.ChatMessageRoleSystem, turns[0].Role)
	assert.Equal(t, o.openai.config.SystemInstruction, turns[0].Content)

	// then the window, oldest first, ending with the trigger
	assert.Equal(t, openai.ChatMessageRoleUser, turns[1].Role)
	assert.Contains(t, turns[1].Content, "deployed the fix")
	assert.Contains(t, turns[1].Content, "someone:")

	assert.Equal(t, openai.ChatMessageRoleAssistant, turns[2].Role)
	assert.Equal(t, "nice work", turns[2].Content)

	assert.Equal(t, openai.ChatMessageRoleUser, turns[3].Role)
	assert.Contains(t, turns[3].Content, "can you summarize what changed?")
}

func TestOrchestratorPromptIncludesTriggerWhenEvicted(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("ok")}
	o, _ := newTestOrchestrator(t, mock)

	// the trigger isn't in the window at all (evicted by a burst)
	trigger := userMsg("99", "still there?", time.Now())
	_, err := o.Respond(
		context.Background(),
		"chan-1",
		trigger,
		EngagementDecision{Respond: true, Reason: ReasonDirectMention},
	)
	require.NoError(t, err)

	turns := mock.requests[0].Messages
	last := turns[len(turns)-1]
	assert.Equal(t, openai.ChatMessageRoleUser, last.Role)
	assert.Contains(t, last.Content, "still there?")
}

func TestOrchestratorDelayedUnresolvedNudge(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("ok")}
	o, store := newTestOrchestrator(t, mock)

	msg := userMsg("1", "pushed the release, hope it holds", time.Now())
	store.Append("chan-1", msg)

	_, err := o.Respond(
		context.Background(),
		"chan-1",
		msg,
		EngagementDecision{Respond: true, Reason: ReasonDelayedUnresolved},
	)
	require.NoError(t, err)

	turns := mock.requests[0].Messages
	require.GreaterOrEqual(t, len(turns), 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, turns[1].Role)
	assert.Contains(t, turns[1].Content, "unanswered")
}

func TestOrchestratorCleansReply(t *testing.T) {
	mock := &mockOpenAIClient{
		response: completionResponse("  padded reply\n\n"),
	}
	o, store := newTestOrchestrator(t, mock)

	msg := userMsg("1", "hello?", time.Now())
	store.Append("chan-1", msg)

	reply, err := o.Respond(
		context.Background(),
		"chan-1",
		msg,
		EngagementDecision{Respond: true, Reason: ReasonQuestion},
	)
	require.NoError(t, err)
	assert.Equal(t, "padded reply", reply)
}
