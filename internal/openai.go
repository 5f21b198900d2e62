package internal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RoleSystem is only ever sent to the model, never stored in a session
const RoleSystem Role = "system"

// OpenAIClientInterface defines the interface for OpenAI client operations
type OpenAIClientInterface interface {
	CreateTranscription(ctx context.Context, file *os.File) (string, error)
	CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error)
	StreamChatCompletion(ctx context.Context, model string, messages []ChatMessage, onDelta func(string)) (string, error)
}

// OpenAIClient wraps the official OpenAI Go SDK
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client. baseURL selects an
// OpenAI compatible endpoint and may be empty.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client}
}

// CreateTranscription implements the transcription method
func (c *OpenAIClient) CreateTranscription(ctx context.Context, file *os.File) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func chatParams(model string, messages []ChatMessage) openai.ChatCompletionNewParams {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: params,
	}
}

// CreateChatCompletion sends the whole conversation and returns the reply
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, chatParams(model, messages))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChatCompletion is CreateChatCompletion with the reply delivered to
// onDelta piece by piece as the model writes it. It returns the whole reply.
func (c *OpenAIClient) StreamChatCompletion(ctx context.Context, model string, messages []ChatMessage, onDelta func(string)) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, chatParams(model, messages))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if len(acc.Choices) == 0 {
		return "", fmt.Errorf("no response choices from model")
	}
	return acc.Choices[0].Message.Content, nil
}

// ModelClient produces an assistant reply for a conversation
type ModelClient interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// StreamingModelClient is a ModelClient that can hand out the reply while
// it is being written
type StreamingModelClient interface {
	ModelClient
	ChatStream(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error)
}

// AI handles model interactions for chat and Whisper transcription
type AI struct {
	client         OpenAIClientInterface
	audio          *Audio
	model          string
	whisperLimit   int64
	timeout        time.Duration
	whisperTimeout time.Duration
	apiKey         string
	baseURL        string
	logger         *slog.Logger
	clientOnce     sync.Once
}

// NewAI creates an AI processor around an existing client
func NewAI(client OpenAIClientInterface, audio *Audio, model string, timeout time.Duration, logger *slog.Logger) *AI {
	if logger == nil {
		logger = discardLogger()
	}
	return &AI{
		client:         client,
		audio:          audio,
		model:          model,
		whisperLimit:   WhisperLimit,
		timeout:        timeout,
		whisperTimeout: 10 * time.Minute,
		logger:         logger,
	}
}

// NewAIFromConfig creates an AI processor with lazy client initialization
func NewAIFromConfig(config *Config, audio *Audio, logger *slog.Logger) *AI {
	ai := NewAI(nil, audio, config.Model, config.ModelTimeout, logger)
	ai.apiKey = config.ModelAPIKey
	ai.baseURL = config.ModelAPIBase
	if config.WhisperTimeout > 0 {
		ai.whisperTimeout = config.WhisperTimeout
	}
	return ai
}

// ensureClient initializes the OpenAI client if needed
func (ai *AI) ensureClient() error {
	ai.clientOnce.Do(func() {
		if ai.client == nil && ai.apiKey != "" {
			ai.client = NewOpenAIClient(ai.apiKey, ai.baseURL)
		}
	})
	if ai.client == nil {
		return ErrMissingAPIKey
	}
	return nil
}

// Chat sends the conversation to the model. Every failure is an ErrModel.
func (ai *AI) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	return ai.complete(ctx, messages, nil)
}

// ChatStream is Chat with the reply passed to onDelta as it arrives
func (ai *AI) ChatStream(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error) {
	return ai.complete(ctx, messages, onDelta)
}

func (ai *AI) complete(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "model.chat")
	defer span.End()
	span.SetAttributes(attribute.String("model", ai.model), attribute.Int("messages", len(messages)),
		attribute.Bool("stream", onDelta != nil))

	if err := ai.ensureClient(); err != nil {
		return "", withKind(ErrModel, err)
	}

	ctx, cancel := context.WithTimeout(ctx, ai.timeout)
	defer cancel()

	start := time.Now()
	var (
		content string
		err     error
	)
	if onDelta != nil {
		content, err = ai.client.StreamChatCompletion(ctx, ai.model, messages, onDelta)
	} else {
		content, err = ai.client.CreateChatCompletion(ctx, ai.model, messages)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		ai.logger.Warn("chat completion failed", slog.String("model", ai.model), slog.Any("err", err))
		return "", asModelError(fmt.Errorf("creating chat completion: %w", err))
	}
	ai.logger.Debug("chat completion", slog.String("model", ai.model), slog.Duration("duration", time.Since(start)))

	return content, nil
}

// Transcribe transcribes audio with Whisper. Files over the upload limit are
// split first; each chunk becomes one segment at its offset.
func (ai *AI) Transcribe(ctx context.Context, audioFile string) (Transcript, error) {
	if err := ai.ensureClient(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ai.whisperTimeout)
	defer cancel()

	info, err := os.Stat(audioFile)
	if err != nil {
		return nil, fmt.Errorf("getting audio file info: %w", err)
	}

	numChunks := int(math.Ceil(float64(info.Size()) / float64(ai.whisperLimit)))

	chunks := []AudioChunk{{Path: audioFile}}
	if numChunks > 1 {
		chunks, err = ai.audio.Split(ctx, audioFile, numChunks)
		if err != nil {
			return nil, fmt.Errorf("splitting audio: %w", err)
		}
	}

	defer func() {
		for _, c := range chunks {
			cleanupFiles(c.Path)
		}
		if len(chunks) > 1 {
			cleanupFiles(audioFile)
		}
	}()

	transcript, err := ai.processAudioChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("transcribing audio: %w", err)
	}
	return transcript, nil
}

// processAudioChunks transcribes audio chunks sequentially
// NOTE: concurrent uploads once returned a broken transcript for one chunk
func (ai *AI) processAudioChunks(ctx context.Context, chunks []AudioChunk) (Transcript, error) {
	transcript := make(Transcript, 0, len(chunks))
	for i, chunk := range chunks {
		file, err := os.Open(chunk.Path)
		if err != nil {
			return nil, fmt.Errorf("opening chunk %s: %w", chunk.Path, err)
		}

		text, err := ai.client.CreateTranscription(ctx, file)
		if closeErr := file.Close(); closeErr != nil {
			ai.logger.Warn("closing audio chunk", slog.String("path", chunk.Path), slog.Any("err", closeErr))
		}
		if err != nil {
			return nil, fmt.Errorf("transcribing chunk %d: %w", i+1, err)
		}

		text = strings.TrimSpace(text)
		if text != "" {
			transcript = append(transcript, TranscriptSegment{Start: chunk.Offset, Text: text})
		}
		ai.logger.Debug("transcribed chunk", slog.Int("chunk", i+1), slog.Int("chunks", len(chunks)))
	}

	return transcript, nil
}
