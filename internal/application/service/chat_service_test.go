package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/external/genai"
)

type fakeCompleter struct {
	lastSystem  string
	lastHistory []genai.Message
	lastPrompt  string
	reply       string
	err         error
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, history []genai.Message, prompt string) (string, error) {
	f.lastSystem = system
	f.lastHistory = append([]genai.Message(nil), history...)
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeContextBuilder struct {
	block string
	err   error
}

func (f *fakeContextBuilder) Build(ctx context.Context, userID, username string) (string, error) {
	return f.block, f.err
}

type fakeFlags struct {
	disabled map[string]bool
}

func (f *fakeFlags) IsEnabled(featureName, userID string) bool {
	return !f.disabled[featureName]
}

func testChatConfig() ChatConfig {
	return ChatConfig{
		MaxConversations: 3,
		MaxExchanges:     2,
		TTL:              time.Minute,
		CleanupInterval:  time.Hour, // sweep stays out of the way
	}
}

func TestChat_InjectsPerformanceContext(t *testing.T) {
	completer := &fakeCompleter{reply: "keep going!"}
	builder := &fakeContextBuilder{block: "Level: 4\nGames played: 12\n"}
	s := NewChatService(completer, builder, nil, testChatConfig(), nil, nil)
	defer s.Close()

	reply, err := s.Send(context.Background(), "u1", "dana", "how am I doing?")
	require.NoError(t, err)
	assert.Equal(t, "keep going!", reply)
	assert.Contains(t, completer.lastSystem, "Games played: 12")
	assert.Equal(t, "how am I doing?", completer.lastPrompt)
}

func TestChat_ContextFlagOff(t *testing.T) {
	completer := &fakeCompleter{reply: "hi"}
	builder := &fakeContextBuilder{block: "Level: 4\n"}
	flags := &fakeFlags{disabled: map[string]bool{"chat.stats_context": true}}
	s := NewChatService(completer, builder, flags, testChatConfig(), nil, nil)
	defer s.Close()

	_, err := s.Send(context.Background(), "u1", "dana", "hello")
	require.NoError(t, err)
	assert.NotContains(t, completer.lastSystem, "Level: 4")
}

func TestChat_DisabledFeature(t *testing.T) {
	completer := &fakeCompleter{reply: "hi"}
	flags := &fakeFlags{disabled: map[string]bool{"chat.tutor": true}}
	s := NewChatService(completer, nil, flags, testChatConfig(), nil, nil)
	defer s.Close()

	_, err := s.Send(context.Background(), "u1", "dana", "hello")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestChat_EmptyMessage(t *testing.T) {
	s := NewChatService(&fakeCompleter{reply: "hi"}, nil, nil, testChatConfig(), nil, nil)
	defer s.Close()

	_, err := s.Send(context.Background(), "u1", "dana", "   ")
	assert.ErrorIs(t, err, shared.ErrEmptyMessage)
}

func TestChat_HistoryBounded(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	s := NewChatService(completer, nil, nil, testChatConfig(), nil, nil)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Send(ctx, "u1", "dana", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	// MaxExchanges=2 keeps 4 messages; the fifth call saw the previous 4.
	require.Len(t, completer.lastHistory, 4)
	assert.Equal(t, "message 2", completer.lastHistory[0].Text)
	assert.Equal(t, "message 3", completer.lastHistory[2].Text)
}

func TestChat_ConversationCapEvictsOldest(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	s := NewChatService(completer, nil, nil, testChatConfig(), nil, nil)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Send(ctx, fmt.Sprintf("u%d", i), "p", "hello")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.ConversationCount(), "cap must hold")
}

func TestChat_FailedCompletionLeavesNoMemory(t *testing.T) {
	completer := &fakeCompleter{err: shared.ErrCompletionUnavailable}
	s := NewChatService(completer, nil, nil, testChatConfig(), nil, nil)
	defer s.Close()

	_, err := s.Send(context.Background(), "u1", "dana", "hello")
	require.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 0, s.ConversationCount())
}

func TestChat_Reset(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	s := NewChatService(completer, nil, nil, testChatConfig(), nil, nil)
	defer s.Close()

	_, err := s.Send(context.Background(), "u1", "dana", "hello")
	require.NoError(t, err)
	s.Reset("u1")

	_, err = s.Send(context.Background(), "u1", "dana", "again")
	require.NoError(t, err)
	assert.Empty(t, completer.lastHistory, "reset must clear remembered turns")
}

func TestChat_ContextBuilderFailureIsNotFatal(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	builder := &fakeContextBuilder{err: shared.ErrPersistence}
	s := NewChatService(completer, builder, nil, testChatConfig(), nil, nil)
	defer s.Close()

	reply, err := s.Send(context.Background(), "u1", "dana", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.False(t, strings.Contains(completer.lastSystem, "Player statistics"))
}
