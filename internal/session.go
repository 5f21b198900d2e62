package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ContextResolver builds the video context for a user message
type ContextResolver interface {
	ResolveContent(ctx context.Context, message string) *Resolution
}

// Reply is the assistant answer for one user turn
type Reply struct {
	Text       string
	Resolution *Resolution
}

// Session is one conversation. History only grows, and a turn is recorded
// only once the model has answered it.
type Session struct {
	resolver ContextResolver
	model    ModelClient
	prompts  *PromptManager
	system   string
	logger   *slog.Logger

	mu      sync.Mutex
	history []Message
}

// NewSession creates an empty conversation
func NewSession(resolver ContextResolver, model ModelClient, prompts *PromptManager, systemPrompt string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = discardLogger()
	}
	if prompts == nil {
		prompts = NewPromptManager("", "")
	}
	return &Session{
		resolver: resolver,
		model:    model,
		prompts:  prompts,
		system:   systemPrompt,
		logger:   logger,
	}
}

// Send resolves the links in text, asks the model and records both turns.
// On error the history is left as it was.
func (s *Session) Send(ctx context.Context, text string) (*Reply, error) {
	return s.send(ctx, text, nil)
}

// SendStream is Send with the answer passed to onDelta while the model
// writes it. Models that cannot stream deliver the whole answer at once.
func (s *Session) SendStream(ctx context.Context, text string, onDelta func(string)) (*Reply, error) {
	return s.send(ctx, text, onDelta)
}

func (s *Session) send(ctx context.Context, text string, onDelta func(string)) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.resolver.ResolveContent(ctx, text)
	user := Message{Role: RoleUser, Text: text, Context: res.Context, Videos: res.Videos()}

	messages, err := s.buildMessages(user)
	if err != nil {
		return nil, err
	}

	answer, err := s.complete(ctx, messages, onDelta)
	if err != nil {
		return nil, asModelError(err)
	}

	s.history = append(s.history, user, Message{Role: RoleAssistant, Text: answer})
	s.logger.Debug("turn completed", slog.Int("history", len(s.history)), slog.Int("videos", user.Videos))

	return &Reply{Text: answer, Resolution: res}, nil
}

func (s *Session) complete(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error) {
	if onDelta == nil {
		return s.model.Chat(ctx, messages)
	}
	if streamer, ok := s.model.(StreamingModelClient); ok {
		return streamer.ChatStream(ctx, messages, onDelta)
	}
	answer, err := s.model.Chat(ctx, messages)
	if err == nil {
		onDelta(answer)
	}
	return answer, err
}

// buildMessages renders the system prompt, every earlier turn and the new one
func (s *Session) buildMessages(next Message) ([]ChatMessage, error) {
	messages := make([]ChatMessage, 0, len(s.history)+2)
	if s.system != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: s.system})
	}

	for _, m := range append(s.history[:len(s.history):len(s.history)], next) {
		if m.Role != RoleUser {
			messages = append(messages, ChatMessage{Role: m.Role, Content: m.Text})
			continue
		}
		content, err := s.prompts.CreatePrompt(m.Text, m.Context, m.Videos)
		if err != nil {
			return nil, withKind(ErrModel, fmt.Errorf("rendering prompt: %w", err))
		}
		messages = append(messages, ChatMessage{Role: RoleUser, Content: content})
	}
	return messages, nil
}

// History returns a copy of the recorded turns
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Reset forgets the conversation
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
