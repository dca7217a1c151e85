package greybot

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamError(t *testing.T) {
	cause := errors.New("connection reset")

	withStatus := NewUpstreamError(upstreamOpenAI, 502, cause)
	assert.Contains(t, withStatus.Error(), "openai")
	assert.Contains(t, withStatus.Error(), "502")
	assert.ErrorIs(t, withStatus, cause)

	noStatus := NewUpstreamError(upstreamBrave, 0, cause)
	assert.Contains(t, noStatus.Error(), "unreachable")
}

func TestIsUpstreamError(t *testing.T) {
	cause := errors.New("boom")
	err := NewUpstreamError(upstreamPexels, 500, cause)

	assert.True(t, IsUpstreamError(err))
	assert.True(t, IsUpstreamError(fmt.Errorf("generating response: %w", err)))
	assert.False(t, IsUpstreamError(cause))
	assert.False(t, IsUpstreamError(nil))
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("discord.token", "required")
	assert.Contains(t, err.Error(), "discord.token")
	assert.Contains(t, err.Error(), "required")

	var cfgErr *ConfigurationError
	require.ErrorAs(t, fmt.Errorf("startup: %w", err), &cfgErr)
	assert.Equal(t, "discord.token", cfgErr.Field)
}
