package engine

import (
	"context"
	"testing"

	"arbitrage/internal/confirm"
	"arbitrage/internal/config"
	"arbitrage/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmAdapter_RequestDelegatesToManager(t *testing.T) {
	mgr, err := confirm.New(config.ConfirmationConfig{TimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	adapter := NewConfirmAdapter(mgr)

	resp := adapter.Request(context.Background(), ConfirmRequest{ID: "r1", Prompt: "proceed?", Options: []string{"YES", "NO"}, DefaultOption: "NO"})

	assert.Equal(t, "NO", resp.Action)
	assert.Equal(t, string(models.SourceTimeout), resp.Source)
}

func TestConfirmAdapter_NotifyDoesNotPanicWithNoChatChannel(t *testing.T) {
	mgr, err := confirm.New(config.ConfirmationConfig{}, nil)
	require.NoError(t, err)
	adapter := NewConfirmAdapter(mgr)

	assert.NotPanics(t, func() { adapter.Notify(context.Background(), "split brain", "critical") })
}
