// Package service contains application services that coordinate multiple
// concerns: the tutor chat and the login/logout session lifecycle.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/external/genai"
)

// systemPrompt frames the tutor persona. The per-user performance block is
// appended when the stats context feature is on.
const systemPrompt = `You are a friendly math tutor inside the Math Runner game.
Encourage the player, keep answers short (2-4 sentences) and concrete.
Base your advice on the player's statistics when they are provided.
Never invent statistics that were not provided.`

// FlagChecker gates optional chat behavior per user.
type FlagChecker interface {
	IsEnabled(featureName, userID string) bool
}

// ContextBuilder renders the performance block injected into the prompt.
type ContextBuilder interface {
	Build(ctx context.Context, userID, username string) (string, error)
}

// ChatConfig bounds the conversation memory.
type ChatConfig struct {
	// MaxConversations caps concurrently remembered conversations. The
	// least recently used conversation is evicted at the cap.
	MaxConversations int

	// MaxExchanges caps remembered user/model exchanges per conversation.
	MaxExchanges int

	// TTL expires idle conversations.
	TTL time.Duration

	// CleanupInterval paces the background expiry sweep.
	CleanupInterval time.Duration
}

// DefaultChatConfig returns production defaults.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxConversations: 100,
		MaxExchanges:     5,
		TTL:              5 * time.Minute,
		CleanupInterval:  30 * time.Second,
	}
}

type conversation struct {
	messages  []genai.Message
	updatedAt time.Time
}

// ChatService runs the stats-aware tutor chat. Conversation memory is
// in-process and bounded; an idle conversation expires after the TTL and the
// player simply starts fresh.
type ChatService struct {
	completer genai.Completer
	builder   ContextBuilder
	flags     FlagChecker
	config    ChatConfig
	publisher shared.EventPublisher
	logger    *slog.Logger

	mu            sync.Mutex
	conversations map[string]*conversation

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewChatService creates the service and starts the expiry sweep.
// flags may be nil; every feature then counts as enabled.
func NewChatService(completer genai.Completer, builder ContextBuilder, flags FlagChecker,
	config ChatConfig, publisher shared.EventPublisher, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	if config.MaxConversations <= 0 {
		config.MaxConversations = 100
	}
	if config.MaxExchanges <= 0 {
		config.MaxExchanges = 5
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}
	s := &ChatService{
		completer:     completer,
		builder:       builder,
		flags:         flags,
		config:        config,
		publisher:     publisher,
		logger:        logger,
		conversations: make(map[string]*conversation),
		stopCh:        make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the expiry sweep.
func (s *ChatService) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Send handles one chat message and returns the tutor's reply.
func (s *ChatService) Send(ctx context.Context, userID, username, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", shared.ErrEmptyMessage
	}
	if s.flags != nil && !s.flags.IsEnabled("chat.tutor", userID) {
		return "", shared.WrapError("chat", "Send", shared.ErrServiceUnavailable, "tutor chat is disabled", nil)
	}

	system := systemPrompt
	if s.builder != nil && (s.flags == nil || s.flags.IsEnabled("chat.stats_context", userID)) {
		block, err := s.builder.Build(ctx, userID, username)
		if err != nil {
			// Chat still works without the block, just less personal.
			s.logger.Warn("performance context unavailable",
				slog.String("user_id", userID), slog.Any("error", err))
		} else {
			system = system + "\n\nPlayer statistics:\n" + block
		}
	}

	history := s.snapshotHistory(userID)

	reply, err := s.completer.Complete(ctx, system, history, text)
	if err != nil {
		return "", err
	}

	s.remember(userID, text, reply)

	event := newChatReplySentEvent(userID, len(reply))
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("event_type", string(event.EventType())),
			slog.Any("error", err))
	}
	return reply, nil
}

// Reset forgets the user's conversation.
func (s *ChatService) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, userID)
}

// ConversationCount returns the number of live conversations.
func (s *ChatService) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// snapshotHistory copies the user's remembered turns. Expired conversations
// read as empty even before the sweep collects them.
func (s *ChatService) snapshotHistory(userID string) []genai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[userID]
	if !ok || time.Since(conv.updatedAt) > s.config.TTL {
		return nil
	}
	out := make([]genai.Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

func (s *ChatService) remember(userID, text, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[userID]
	if !ok || time.Since(conv.updatedAt) > s.config.TTL {
		if len(s.conversations) >= s.config.MaxConversations {
			s.evictOldestLocked()
		}
		conv = &conversation{}
		s.conversations[userID] = conv
	}

	conv.messages = append(conv.messages,
		genai.Message{Role: "user", Text: text},
		genai.Message{Role: "model", Text: reply},
	)
	if max := s.config.MaxExchanges * 2; len(conv.messages) > max {
		conv.messages = conv.messages[len(conv.messages)-max:]
	}
	conv.updatedAt = time.Now()
}

func (s *ChatService) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, conv := range s.conversations {
		if oldestID == "" || conv.updatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = conv.updatedAt
		}
	}
	if oldestID != "" {
		delete(s.conversations, oldestID)
	}
}

func (s *ChatService) sweep() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			for id, conv := range s.conversations {
				if time.Since(conv.updatedAt) > s.config.TTL {
					delete(s.conversations, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

type chatReplySentEvent struct {
	shared.BaseEvent
	ReplyLength int `json:"reply_length"`
}

func (e chatReplySentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"reply_length": e.ReplyLength}
}

func newChatReplySentEvent(userID string, replyLength int) chatReplySentEvent {
	return chatReplySentEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventChatReplySent, userID),
		ReplyLength: replyLength,
	}
}
