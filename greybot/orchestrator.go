package greybot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// Orchestrator assembles conversation context (plus any retrieved
// auxiliary information) into a single prompt, invokes the
// completion service, and records the reply.
//
// Exactly one message is appended to the conversation store per
// successful response; nothing is appended on failure, so a reply
// that never reached the channel can't poison later prompts.
type Orchestrator struct {
	store      *ConversationStore
	classifier *Classifier
	openai     *OpenAI
	search     *SearchClient

	botUserID string
	botName   string
	logger    *slog.Logger
}

func newOrchestrator(
	store *ConversationStore,
	classifier *Classifier,
	completions *OpenAI,
	search *SearchClient,
	botUserID string,
	botName string,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		openai:     completions,
		search:     search,
		botUserID:  botUserID,
		botName:    botName,
		logger:     logger.With(loggerNameKey, "orchestrator"),
	}
}

// Respond generates a reply to msg in the given conversation.
//
// The prompt is: the fixed system instruction, any retrieved
// auxiliary context, the retained window rendered as turns (oldest
// first, ending with the triggering message), in that order. On
// success the reply is appended to the store as a bot-authored
// Message and returned; on failure the store is untouched and the
// error chain contains an UpstreamError.
func (o *Orchestrator) Respond(
	ctx context.Context,
	conversationID string,
	msg Message,
	decision EngagementDecision,
) (string, error) {
	ctx, logger := o.getLogger(ctx)

	recent := o.store.Recent(conversationID)

	aux := o.retrieve(ctx, msg)

	turns := o.buildPrompt(recent, msg, decision, aux)

	reply, err := o.openai.Complete(ctx, turns)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"completion failed, leaving context untouched",
			tint.Err(err),
			"conversation_id", conversationID,
		)
		return "", fmt.Errorf("generating response: %w", err)
	}

	reply = cleanReply(reply)

	o.store.Append(
		conversationID, Message{
			ID:         fmt.Sprintf("bot-%d", time.Now().UnixNano()),
			AuthorID:   o.botUserID,
			AuthorName: o.botName,
			Content:    reply,
			Timestamp:  time.Now(),
			Bot:        true,
		},
	)

	logger.InfoContext(
		ctx,
		"generated response",
		"conversation_id", conversationID,
		"decision", decision,
		"reply_len", len(reply),
	)
	return reply, nil
}

func (o *Orchestrator) getLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = o.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// retrieve performs supplementary lookups for the triggering
// message and renders them as auxiliary prompt context. Retrieval
// failures are logged and skipped - a missing snippet degrades the
// answer, it shouldn't block it.
func (o *Orchestrator) retrieve(ctx context.Context, msg Message) string {
	var sections []string

	if o.search != nil && o.classifier.NeedsCurrentInfo(msg.Content) {
		results, err := o.search.Search(ctx, msg.Content)
		if err != nil {
			o.logger.WarnContext(
				ctx,
				"search retrieval failed, continuing without it",
				tint.Err(err),
			)
		} else if len(results) > 0 {
			sections = append(
				sections,
				"Current web search results:\n"+formatSearchResults(
					msg.Content,
					results,
				),
			)
		}
	}

	return strings.Join(sections, "\n\n")
}

// buildPrompt renders the prompt as ordered chat turns: system
// instruction, optional auxiliary context, then the retained window
// oldest-first. The triggering message is the final turn - it's
// normally already the newest window entry, but is appended
// explicitly if eviction raced it out.
func (o *Orchestrator) buildPrompt(
	recent []Message,
	msg Message,
	decision EngagementDecision,
	aux string,
) []openai.ChatCompletionMessage {
	turns := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.openai.config.SystemInstruction,
		},
	}

	if decision.Reason == ReasonDelayedUnresolved {
		turns = append(
			turns, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleSystem,
				Content: "The last message has gone unanswered for a while. " +
					"Gently acknowledge it and keep the conversation going.",
			},
		)
	}

	if aux != "" {
		turns = append(
			turns, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: aux,
			},
		)
	}

	sawTrigger := false
	for _, m := range recent {
		if m.ID == msg.ID {
			sawTrigger = true
		}
		turns = append(turns, renderTurn(m))
	}
	if !sawTrigger {
		turns = append(turns, renderTurn(msg))
	}

	return turns
}

func renderTurn(m Message) openai.ChatCompletionMessage {
	if m.Bot {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: m.Content,
		}
	}
	content := m.Content
	if m.AuthorName != "" {
		content = fmt.Sprintf("%s: %s", m.AuthorName, m.Content)
	}
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}
}
