package greybot

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotUserID = "bot-user-id"

// mockSession implements DiscordSessionHandler, recording sent
// messages instead of talking to a gateway.
type mockSession struct {
	mu       sync.Mutex
	sent     []string
	channels []string
	sendErr  error
}

func (m *mockSession) Open() error  { return nil }
func (m *mockSession) Close() error { return nil }

func (m *mockSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, message)
	m.channels = append(m.channels, channelID)
	return &discordgo.Message{ID: "sent", ChannelID: channelID}, nil
}

func (m *mockSession) ChannelMessageSendReply(
	channelID string,
	content string,
	_ *discordgo.MessageReference,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return m.ChannelMessageSend(channelID, content)
}

func (m *mockSession) ChannelTyping(
	string,
	...discordgo.RequestOption,
) error {
	return nil
}

func (m *mockSession) UpdateCustomStatus(string) error { return nil }
func (m *mockSession) AddHandler(any) func()           { return func() {} }
func (m *mockSession) SetHTTPClient(*http.Client)      {}
func (m *mockSession) SetLogLevel(slog.Level) error    { return nil }

func (m *mockSession) BotUser() *discordgo.User {
	return &discordgo.User{ID: testBotUserID, Username: "Grey", Bot: true}
}

func (m *mockSession) sentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.sent...)
}

// newTestBot wires a GreyBot with mocked Discord and OpenAI layers.
func newTestBot(t testing.TB, mock *mockOpenAIClient) (*GreyBot, *mockSession) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Discord.Token = "test-discord-token"
	cfg.Discord.ApplicationID = "test-app-id"
	cfg.OpenAI.Token = "test-openai-token"

	session := &mockSession{}

	g := &GreyBot{
		config:     cfg,
		logger:     slog.Default(),
		signalStop: make(chan struct{}, 1),
		stats:      newStats(),
	}
	g.store = NewConversationStore(
		cfg.Engagement.WindowSize,
		cfg.Engagement.MaxAge,
		g.logger,
	)
	g.classifier = NewClassifier(cfg.Engagement)
	g.openai = newTestOpenAI(t, mock)
	g.discord = &Discord{
		config:  cfg.Discord,
		logger:  slog.Default(),
		session: session,
		bot:     g,
	}
	g.orchestrator = newOrchestrator(
		g.store,
		g.classifier,
		g.openai,
		nil,
		testBotUserID,
		cfg.BotName,
		g.logger,
	)
	return g, session
}

func incomingMessage(id string, channelID string, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		ChannelID: channelID,
		Content:   content,
		Timestamp: time.Now(),
		Author: &discordgo.User{
			ID:       "user-1",
			Username: "someone",
		},
	}
}

func TestHandleMessageQuestionGetsReply(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("it's on port 8080")}
	g, session := newTestBot(t, mock)

	g.handleMessage(
		context.Background(),
		testBotUserID,
		incomingMessage("1", "chan-1", "what port does the api listen on?"),
	)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "it's on port 8080", sent[0])

	// both the question and the reply are in the window
	recent := g.store.Recent("chan-1")
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Bot)
	assert.True(t, recent[1].Bot)

	summary := g.stats.Summary()
	assert.Equal(t, int64(1), summary.MessagesSeen)
	assert.Equal(t, int64(1), summary.RepliesSent)
	assert.Equal(t, int64(1), summary.Reasons[ReasonQuestion])
}

func TestHandleMessageStatementIsRecordedSilently(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("unused")}
	g, session := newTestBot(t, mock)
	g.config.Engagement.UnresolvedDelay = 0 // no delayed re-check

	g.handleMessage(
		context.Background(),
		testBotUserID,
		incomingMessage("1", "chan-1", "deployed the fix"),
	)

	assert.Empty(t, session.sentMessages())
	assert.Empty(t, mock.requests)

	// still recorded as context
	assert.Equal(t, 1, g.store.Len("chan-1"))
}

func TestHandleMessageMentionByName(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("you called?")}
	g, session := newTestBot(t, mock)

	g.handleMessage(
		context.Background(),
		testBotUserID,
		incomingMessage("1", "chan-1", "grey please take a look at this"),
	)

	sent := session.sentMessages()
	require.Len(t, sent, 1)

	summary := g.stats.Summary()
	assert.Equal(t, int64(1), summary.Reasons[ReasonDirectMention])
}

func TestHandleMessageOtherBotNeverEngages(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("unused")}
	g, session := newTestBot(t, mock)

	m := incomingMessage("1", "chan-1", "how do I do the thing?")
	m.Author.Bot = true

	g.handleMessage(context.Background(), testBotUserID, m)

	assert.Empty(t, session.sentMessages())
	assert.Empty(t, mock.requests)

	// recorded as context, but not counted as activity
	assert.Equal(t, 1, g.store.Len("chan-1"))
	assert.Equal(t, int64(0), g.stats.Summary().MessagesSeen)
}

func TestHandleMessageUpstreamFailureFallback(t *testing.T) {
	mock := &mockOpenAIClient{
		err: &openai.APIError{HTTPStatusCode: 503, Message: "down"},
	}
	g, session := newTestBot(t, mock)

	g.handleMessage(
		context.Background(),
		testBotUserID,
		incomingMessage("1", "chan-1", "is anyone around?"),
	)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, g.config.Discord.ErrorMessage, sent[0])

	// the failed reply was never recorded
	assert.Equal(t, 1, g.store.Len("chan-1"))
	assert.Equal(
		t,
		int64(1),
		g.stats.Summary().Failures[upstreamOpenAI],
	)
}

func TestHandleMessageCommandBypassesEngagement(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("unused")}
	g, session := newTestBot(t, mock)

	g.handleMessage(
		context.Background(),
		testBotUserID,
		incomingMessage("1", "chan-1", "!ping"),
	)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Pong!", sent[0])

	// commands aren't context
	assert.Equal(t, 0, g.store.Len("chan-1"))
	assert.Empty(t, mock.requests)
}

func TestScheduleUnresolvedCheck(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("how did it go?")}
	g, session := newTestBot(t, mock)
	g.config.Engagement.UnresolvedDelay = 20 * time.Millisecond

	// the classifier decides based on its own clock; move it past the
	// delay so the re-check fires
	msg := userMsg("1", "pushed the release", time.Now().Add(-time.Minute))
	g.classifier.unresolvedDelay = 20 * time.Millisecond
	g.store.Append("chan-1", msg)

	g.scheduleUnresolvedCheck(context.Background(), "chan-1", msg)
	g.pending.Wait()

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "how did it go?", sent[0])
}

func TestScheduleUnresolvedCheckSuppressedByNewerActivity(t *testing.T) {
	mock := &mockOpenAIClient{response: completionResponse("unused")}
	g, session := newTestBot(t, mock)
	g.config.Engagement.UnresolvedDelay = 100 * time.Millisecond
	g.classifier.unresolvedDelay = 10 * time.Millisecond

	msg := userMsg("1", "pushed the release", time.Now().Add(-time.Minute))
	g.store.Append("chan-1", msg)

	g.scheduleUnresolvedCheck(context.Background(), "chan-1", msg)

	// newer activity arrives before the timer fires
	g.store.Append(
		"chan-1",
		userMsg("2", "looks healthy", time.Now()),
	)
	g.pending.Wait()

	assert.Empty(t, session.sentMessages())
	assert.Empty(t, mock.requests)
}

func TestValidateConfig(t *testing.T) {
	mock := &mockOpenAIClient{}
	g, _ := newTestBot(t, mock)

	require.NoError(t, g.ValidateConfig())

	g.config.Discord.Token = ""
	err := g.ValidateConfig()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
