package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes content resolution as MCP tools
type MCPServer struct {
	app       *App
	mcpServer *server.MCPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(app *App, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		AppName+"-server",
		version,
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		app:       app,
		mcpServer: mcpServer,
	}
	s.registerTools()

	return s
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("resolve_youtube_context",
		mcp.WithDescription("Find every YouTube video and playlist link in a message and return their titles, channels, descriptions and transcripts as one context block. Links that cannot be fetched are replaced by an 'unavailable' marker. Results are cached."),
		mcp.WithString("message",
			mcp.Description("Free text containing one or more YouTube links"),
			mcp.Required(),
		),
	), s.handleResolveContext)

	s.mcpServer.AddTool(mcp.NewTool("get_youtube_metadata",
		mcp.WithDescription("Get video or playlist metadata as JSON. For playlists, returns the member videos."),
		mcp.WithString("url",
			mcp.Description("YouTube video or playlist URL, or a bare ID"),
			mcp.Required(),
		),
	), s.handleGetMetadata)

	// free: existing captions only
	s.mcpServer.AddTool(mcp.NewTool("get_youtube_transcript",
		mcp.WithDescription("Get existing YouTube captions (FREE). For playlists, returns the transcript of every video. Fails if no captions are available."),
		mcp.WithString("url",
			mcp.Description("YouTube video or playlist URL, or a bare ID"),
			mcp.Required(),
		),
		mcp.WithBoolean("timestamps",
			mcp.Description("Prefix each line with its [mm:ss] offset"),
		),
	), s.handleGetTranscript)

	// paid: Whisper
	s.mcpServer.AddTool(mcp.NewTool("transcribe_youtube_whisper",
		mcp.WithDescription("Create a transcript with the OpenAI Whisper API (PAID). Requires a model API key. Use only when a video has no captions and the user explicitly agrees to the cost."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID"),
			mcp.Required(),
		),
	), s.handleWhisperTranscribe)
}

func (s *MCPServer) handleResolveContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message parameter is required and must be a string"), nil
	}

	res := s.app.ResolveContext(ctx, message)
	if res.Context == "" {
		return mcp.NewToolResultText("no YouTube links found"), nil
	}
	return mcp.NewToolResultText(res.Context), nil
}

func (s *MCPServer) handleGetMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	id, err := ParseArg(arg)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid url", err), nil
	}

	metadata, err := s.app.Metadata(ctx, id)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("metadata error", err), nil
	}

	out, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("encoding metadata", err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *MCPServer) handleGetTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	id, err := ParseArg(arg)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid url", err), nil
	}
	timestamps := request.GetBool("timestamps", s.app.config.Timestamps)

	items, err := s.app.Transcripts(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoCaptions) {
			return mcp.NewToolResultErrorFromErr("no captions available - consider transcribe_youtube_whisper (paid)", err), nil
		}
		return mcp.NewToolResultErrorFromErr("transcript error", err), nil
	}

	return mcp.NewToolResultText(TranscriptText(items, timestamps)), nil
}

func (s *MCPServer) handleWhisperTranscribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	id, err := ParseArg(arg)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid url", err), nil
	}
	if id.Type != ContentTypeVideo {
		return mcp.NewToolResultError("whisper transcription takes a single video"), nil
	}

	transcript, err := s.app.TranscribeWithWhisper(ctx, id.ID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to transcribe audio with Whisper", err), nil
	}

	return mcp.NewToolResultText(strings.TrimSpace(transcript.Text())), nil
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)

		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.Start(addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return httpServer.Shutdown(context.WithoutCancel(ctx))
		}
	}

	return server.ServeStdio(s.mcpServer)
}

// GetServer returns the underlying MCP server for advanced configuration
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.mcpServer
}
