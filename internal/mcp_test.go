package internal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func newTestMCPServer(t *testing.T) *MCPServer {
	t.Helper()
	yt := newFakeYouTube()
	yt.videos["abc123defgh"] = VideoMetadata{ID: "abc123defgh", Title: "Demo", Channel: "Demo Channel"}
	yt.transcripts["abc123defgh"] = Transcript{{Start: 0, Text: "hello"}}
	yt.addVideo("silent12345", "Silent")
	yt.captionErr["silent12345"] = noCaptionsf("none")
	return NewMCPServer(newTestApp(t, yt, &scriptedModel{}, NewMemoryStore(0)), "test")
}

func TestMCPToolsRegistered(t *testing.T) {
	s := newTestMCPServer(t)

	tools := s.GetServer().ListTools()
	for _, name := range []string{"resolve_youtube_context", "get_youtube_metadata", "get_youtube_transcript", "transcribe_youtube_whisper"} {
		assert.Contains(t, tools, name)
	}
}

func TestMCPResolveContext(t *testing.T) {
	s := newTestMCPServer(t)

	text, isErr := callTool(t, s.handleResolveContext, map[string]any{"message": "what is https://youtu.be/abc123defgh about"})
	assert.False(t, isErr)
	assert.Contains(t, text, "<VIDEO_TITLE>Demo</VIDEO_TITLE>")

	text, _ = callTool(t, s.handleResolveContext, map[string]any{"message": "no links"})
	assert.Equal(t, "no YouTube links found", text)

	_, isErr = callTool(t, s.handleResolveContext, map[string]any{})
	assert.True(t, isErr)
}

func TestMCPMetadata(t *testing.T) {
	s := newTestMCPServer(t)

	text, isErr := callTool(t, s.handleGetMetadata, map[string]any{"url": "https://www.youtube.com/watch?v=abc123defgh"})
	require.False(t, isErr)
	var metadata VideoMetadata
	require.NoError(t, json.Unmarshal([]byte(text), &metadata))
	assert.Equal(t, "Demo", metadata.Title)

	_, isErr = callTool(t, s.handleGetMetadata, map[string]any{"url": "not a link"})
	assert.True(t, isErr)
}

func TestMCPTranscript(t *testing.T) {
	s := newTestMCPServer(t)

	text, isErr := callTool(t, s.handleGetTranscript, map[string]any{"url": "abc123defgh"})
	require.False(t, isErr)
	assert.Equal(t, "[00:00] hello", text)

	text, _ = callTool(t, s.handleGetTranscript, map[string]any{"url": "abc123defgh", "timestamps": false})
	assert.Equal(t, "hello", text)

	text, isErr = callTool(t, s.handleGetTranscript, map[string]any{"url": "silent12345"})
	assert.True(t, isErr)
	assert.Contains(t, text, "transcribe_youtube_whisper")
}

func TestMCPWhisperRejectsPlaylists(t *testing.T) {
	s := newTestMCPServer(t)

	_, isErr := callTool(t, s.handleWhisperTranscribe, map[string]any{"url": "PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf"})
	assert.True(t, isErr)

	text, isErr := callTool(t, s.handleWhisperTranscribe, map[string]any{"url": "abc123defgh"})
	assert.True(t, isErr)
	assert.Contains(t, text, "API key")
}
