package internal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers with canned replies and records what it was sent
type scriptedModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	received [][]ChatMessage
}

func (m *scriptedModel) Chat(_ context.Context, messages []ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, append([]ChatMessage(nil), messages...))
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "ok", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) last() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received[len(m.received)-1]
}

// streamingModel is a scriptedModel that streams its reply word by word
type streamingModel struct {
	scriptedModel
}

func (m *streamingModel) ChatStream(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error) {
	reply, err := m.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		onDelta(word)
	}
	return reply, nil
}

func newTestSession(t *testing.T, model ModelClient, system string) (*Session, *fakeYouTube) {
	t.Helper()
	yt := newFakeYouTube()
	yt.videos["abc123"] = VideoMetadata{ID: "abc123", Title: "Demo", Channel: "Demo Channel"}
	yt.transcripts["abc123"] = Transcript{{Start: 0, Text: "hello"}, {Start: 5 * time.Second, Text: "world"}}
	r := newTestResolver(yt, WithCache(NewMemoryStore(0)))
	return NewSession(r, model, nil, system, nil), yt
}

func TestSessionSendWithVideo(t *testing.T) {
	model := &scriptedModel{replies: []string{"It greets the world."}}
	s, _ := newTestSession(t, model, "You answer questions about videos.")

	reply, err := s.Send(context.Background(), "  What is this about? https://youtu.be/abc123  ")
	require.NoError(t, err)
	assert.Equal(t, "It greets the world.", reply.Text)
	assert.Equal(t, 1, reply.Resolution.Videos())

	sent := model.last()
	require.Len(t, sent, 2)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Equal(t, "You answer questions about videos.", sent[0].Content)
	assert.Equal(t, RoleUser, sent[1].Role)
	assert.Contains(t, sent[1].Content, "What is this about? https://youtu.be/abc123")
	assert.Contains(t, sent[1].Content, "<VIDEO_TITLE>Demo</VIDEO_TITLE>")

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, 1, history[0].Videos)
	assert.NotEmpty(t, history[0].Context)
	assert.Equal(t, Message{Role: RoleAssistant, Text: "It greets the world."}, history[1])
}

func TestSessionPlainMessageHasNoContext(t *testing.T) {
	model := &scriptedModel{}
	s, yt := newTestSession(t, model, "")

	_, err := s.Send(context.Background(), "hi there")
	require.NoError(t, err)

	sent := model.last()
	require.Len(t, sent, 1, "no system message when none is configured")
	assert.Equal(t, "hi there", sent[0].Content)
	meta, captions, _ := yt.calls()
	assert.Zero(t, meta+captions)
}

func TestSessionReplaysEarlierTurns(t *testing.T) {
	model := &scriptedModel{replies: []string{"first answer", "second answer"}}
	s, yt := newTestSession(t, model, "system")

	_, err := s.Send(context.Background(), "Summarize https://youtu.be/abc123")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "And what comes after hello?")
	require.NoError(t, err)

	sent := model.last()
	require.Len(t, sent, 4)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Contains(t, sent[1].Content, "<TRANSCRIPT>", "earlier context is kept in the conversation")
	assert.Equal(t, ChatMessage{Role: RoleAssistant, Content: "first answer"}, sent[2])
	assert.Equal(t, "And what comes after hello?", sent[3].Content)

	meta, _, _ := yt.calls()
	assert.Equal(t, 1, meta, "earlier context is not fetched again")
	assert.Len(t, s.History(), 4)
}

func TestSessionModelFailureLeavesHistoryUnchanged(t *testing.T) {
	model := &scriptedModel{replies: []string{"first answer"}}
	s, _ := newTestSession(t, model, "")

	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	before := s.History()

	model.err = errors.New("upstream 500")
	_, err = s.Send(context.Background(), "https://youtu.be/abc123 what now?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModel)
	assert.Equal(t, before, s.History())
}

func TestSessionModelTimeoutIsModelError(t *testing.T) {
	model := &scriptedModel{err: context.DeadlineExceeded}
	s, _ := newTestSession(t, model, "")

	_, err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrModel)
	assert.Empty(t, s.History())
}

func TestSessionBrokenPromptIsModelError(t *testing.T) {
	model := &scriptedModel{}
	s, _ := newTestSession(t, model, "")
	s.prompts = NewPromptManager("", "{{.Nope")

	_, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModel)
	assert.Contains(t, err.Error(), "rendering prompt")
	assert.Empty(t, model.received, "the model is not called")
	assert.Empty(t, s.History())
}

func TestSessionSendStream(t *testing.T) {
	model := &streamingModel{scriptedModel{replies: []string{"It says hello world."}}}
	s, _ := newTestSession(t, model, "")

	var deltas []string
	reply, err := s.SendStream(context.Background(), "https://youtu.be/abc123 summary?", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "It says hello world.", reply.Text)
	assert.Equal(t, []string{"It ", "says ", "hello ", "world."}, deltas)
	assert.Equal(t, 1, reply.Resolution.Videos())
	assert.Len(t, s.History(), 2)
}

func TestSessionSendStreamWithoutStreamingModel(t *testing.T) {
	s, _ := newTestSession(t, &scriptedModel{replies: []string{"whole answer"}}, "")

	var deltas []string
	reply, err := s.SendStream(context.Background(), "hello", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"whole answer"}, deltas)
	assert.Equal(t, "whole answer", reply.Text)
}

func TestSessionRejectsEmptyMessage(t *testing.T) {
	model := &scriptedModel{}
	s, _ := newTestSession(t, model, "")

	_, err := s.Send(context.Background(), "   ")
	assert.Error(t, err)
	assert.Empty(t, model.received)
}

func TestSessionReset(t *testing.T) {
	s, _ := newTestSession(t, &scriptedModel{}, "")
	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	s.Reset()
	assert.Empty(t, s.History())
}

func TestSessionHistoryIsACopy(t *testing.T) {
	s, _ := newTestSession(t, &scriptedModel{}, "")
	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	h := s.History()
	h[0].Text = "changed"
	assert.Equal(t, "hello", s.History()[0].Text)
}
