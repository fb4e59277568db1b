package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Danni-Agent/internal/config"
	"Danni-Agent/internal/llm/anthropic"
	"Danni-Agent/internal/llm/cli"
	"Danni-Agent/internal/llm/openai"
)

func TestNewLLMClientSelectsBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Backend = "cli"
	client, err := newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &cli.Client{}, client)

	cfg.LLM.Backend = "api"
	cfg.LLM.Anthropic.APIKey = "sk-ant-test"
	client, err = newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Client{}, client)

	cfg.LLM.Backend = "openai"
	cfg.LLM.OpenAI.APIKey = "sk-test"
	client, err = newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, client)

	cfg.LLM.Backend = "llama"
	_, err = newLLMClient(cfg)
	assert.Error(t, err)
}

func TestNewEventSinksWithoutTargets(t *testing.T) {
	subs, closeAll, err := newEventSinks(context.Background(), config.TrackerConfig{})
	require.NoError(t, err)
	assert.Empty(t, subs)
	closeAll()
}

func TestRootCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["register"])
	assert.True(t, names["version"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}
