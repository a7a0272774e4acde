package agent

import (
	"context"
	"testing"

	"github.com/cadenzalabs/ensemble/internal/piece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_RepeatsLastResponseBeyondScriptLength(t *testing.T) {
	m := NewMockProvider([]piece.CallResult{
		{Content: "first", Status: piece.StatusDone},
		{Content: "second", Status: piece.StatusDone},
	})
	r1, err := m.Call(context.Background(), "p1", piece.CallOptions{})
	require.NoError(t, err)
	r2, err := m.Call(context.Background(), "p2", piece.CallOptions{})
	require.NoError(t, err)
	r3, err := m.Call(context.Background(), "p3", piece.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "first", r1.Content)
	assert.Equal(t, "second", r2.Content)
	assert.Equal(t, "second", r3.Content)
	assert.Equal(t, 3, m.CallCount())
}

func TestMockProvider_BackfillsSessionIDFromOptions(t *testing.T) {
	m := NewMockProvider([]piece.CallResult{{Content: "x", Status: piece.StatusDone}})
	r, err := m.Call(context.Background(), "p", piece.CallOptions{SessionID: "sess-5"})
	require.NoError(t, err)
	assert.Equal(t, "sess-5", r.SessionID)
}

func TestMockProvider_ScriptedSessionIDNotOverwritten(t *testing.T) {
	m := NewMockProvider([]piece.CallResult{{Content: "x", Status: piece.StatusDone, SessionID: "scripted"}})
	r, err := m.Call(context.Background(), "p", piece.CallOptions{SessionID: "sess-5"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", r.SessionID)
}

func TestMockProvider_RecordsPrompts(t *testing.T) {
	m := NewMockProvider(nil)
	_, _ = m.Call(context.Background(), "hello", piece.CallOptions{})
	_, _ = m.Call(context.Background(), "world", piece.CallOptions{})
	assert.Equal(t, []string{"hello", "world"}, m.Prompts())
}

func TestMockProvider_CancelledContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMockProvider(nil)
	_, err := m.Call(ctx, "p", piece.CallOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.CallCount())
}

func TestMockProvider_AbortSignalErrors(t *testing.T) {
	abortCh := make(chan struct{})
	close(abortCh)
	m := NewMockProvider(nil)
	_, err := m.Call(context.Background(), "p", piece.CallOptions{AbortSignal: abortCh})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.CallCount())
}

func TestMockProviderFunc_ReceivesCallNumberAndPrompt(t *testing.T) {
	seen := map[int]string{}
	m := NewMockProviderFunc(func(n int, prompt string) piece.CallResult {
		seen[n] = prompt
		return piece.CallResult{Content: prompt, Status: piece.StatusDone}
	})
	_, _ = m.Call(context.Background(), "one", piece.CallOptions{})
	_, _ = m.Call(context.Background(), "two", piece.CallOptions{})
	assert.Equal(t, "one", seen[1])
	assert.Equal(t, "two", seen[2])
}

func TestMockProvider_EmptyScriptDefaultsToDone(t *testing.T) {
	m := NewMockProvider(nil)
	r, err := m.Call(context.Background(), "p", piece.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, piece.StatusDone, r.Status)
}
