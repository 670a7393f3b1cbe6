package confirm

import (
	"context"
	"testing"
	"time"

	"arbitrage/internal/config"
	"arbitrage/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SkipsTelegramWhenTokenEmpty(t *testing.T) {
	m, err := New(config.ConfirmationConfig{TimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, m.bot)
}

func TestRequest_NoChannelsConfiguredFallsBackToTimeoutDefault(t *testing.T) {
	m, err := New(config.ConfirmationConfig{TimeoutSeconds: 1}, nil)
	require.NoError(t, err)

	req := Request{ID: "r1", Prompt: "close position?", Options: []string{"YES", "NO"}, DefaultOption: "NO"}
	result := m.Request(context.Background(), req)

	assert.Equal(t, "NO", result.Action)
	assert.Equal(t, models.SourceTimeout, result.Source)
}

func TestNotify_NoChatChannelDoesNotPanic(t *testing.T) {
	m, err := New(config.ConfirmationConfig{}, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.Notify(context.Background(), "split brain detected", SeverityCritical) })
}

func TestParseChatID_ValidAndInvalid(t *testing.T) {
	id, err := parseChatID("123456")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)

	_, err = parseChatID("not-a-number")
	assert.Error(t, err)
}

func TestPending_UnknownIDIsNotRegistered(t *testing.T) {
	m, err := New(config.ConfirmationConfig{}, nil)
	require.NoError(t, err)
	m.pending["known"] = make(chan raceResult, 1)

	assert.NotPanics(t, func() {
		m.mu.Lock()
		_, ok := m.pending["unknown"]
		m.mu.Unlock()
		assert.False(t, ok)
	})
}

func TestStop_ClosesStopChannel(t *testing.T) {
	m, err := New(config.ConfirmationConfig{}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	_, open := <-m.stopCh
	assert.False(t, open)
}
