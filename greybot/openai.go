package greybot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

const upstreamOpenAI = "openai"

// OpenAIClient defines the subset of the go-openai client used by
// this application, to enable testing/mocking.
type OpenAIClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// OpenAI wraps the completion service client. It owns the per-call
// timeout and translates client failures into UpstreamError, so the
// orchestrator only ever sees one error shape.
type OpenAI struct {
	client OpenAIClient
	config *OpenAIConfig
	logger *slog.Logger
}

func newOpenAI(config *OpenAIConfig, httpClient *http.Client) *OpenAI {
	o := &OpenAI{config: config}
	o.logger = slog.New(
		newTintHandler(config.LogLevel),
	).With(loggerNameKey, "openai")

	clientCfg := openai.DefaultConfig(config.Token)
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)

	return o
}

// Complete sends the given turns to the chat completion endpoint and
// returns the reply content. Exactly one attempt is made; any
// failure (unreachable, non-success status, timeout, empty choice
// list) is returned as an UpstreamError.
func (o *OpenAI) Complete(
	ctx context.Context,
	turns []openai.ChatCompletionMessage,
) (string, error) {
	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:     o.config.Model,
		Messages:  turns,
		MaxTokens: o.config.MaxTokens,
	}

	started := time.Now()
	rv, err := o.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(started)

	if err != nil {
		o.logger.ErrorContext(
			ctx,
			"completion request failed",
			tint.Err(err),
			"model", o.config.Model,
			"elapsed", elapsed,
		)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", NewUpstreamError(upstreamOpenAI, apiErr.HTTPStatusCode, err)
		}
		return "", NewUpstreamError(upstreamOpenAI, 0, err)
	}

	if len(rv.Choices) == 0 {
		o.logger.WarnContext(ctx, "completion returned no choices", "id", rv.ID)
		return "", NewUpstreamError(
			upstreamOpenAI,
			0,
			errors.New("completion returned no choices"),
		)
	}

	o.logger.InfoContext(
		ctx,
		"completion finished",
		"model", rv.Model,
		"elapsed", elapsed,
		"prompt_tokens", rv.Usage.PromptTokens,
		"completion_tokens", rv.Usage.CompletionTokens,
	)

	return rv.Choices[0].Message.Content, nil
}
