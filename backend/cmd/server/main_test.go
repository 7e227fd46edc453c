package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdr-graph/backend/internal/adapter"
	"cdr-graph/backend/pkg/config"
)

func TestNewAssistant_Disabled(t *testing.T) {
	cfg := &config.Config{LLMModel: "gpt-4o"}
	assert.Nil(t, newAssistant(cfg))
}

func TestNewAssistant_Enabled(t *testing.T) {
	cfg := &config.Config{LLMAPIKey: "key", LLMModel: "gpt-4o-mini", LLMBaseURL: "http://localhost:4000"}
	ai := newAssistant(cfg)
	require.NotNil(t, ai)

	llm, ok := ai.(*adapter.LLMAdapter)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", llm.GetModel())
}
