package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// MetadataFetcher retrieves descriptive metadata for videos and playlists
type MetadataFetcher interface {
	VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error)
	PlaylistMetadata(ctx context.Context, playlistID string) (*PlaylistMetadata, error)
}

// TranscriptFetcher retrieves the timed caption segments of a video
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID string) (Transcript, error)
}

// AudioDownloader fetches a video's audio track to a local file
type AudioDownloader interface {
	Audio(ctx context.Context, videoID string) (string, error)
}

// AudioTranscriber turns an audio file into a transcript
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audioFile string) (Transcript, error)
}

// WhisperFallback transcribes the audio of videos that have no captions
type WhisperFallback struct {
	captions    TranscriptFetcher
	downloader  AudioDownloader
	transcriber AudioTranscriber
	logger      *slog.Logger
}

// NewWhisperFallback wraps a caption fetcher with audio transcription
func NewWhisperFallback(captions TranscriptFetcher, downloader AudioDownloader, transcriber AudioTranscriber, logger *slog.Logger) *WhisperFallback {
	if logger == nil {
		logger = discardLogger()
	}
	return &WhisperFallback{
		captions:    captions,
		downloader:  downloader,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Transcript returns captions when they exist and a Whisper transcript otherwise
func (w *WhisperFallback) Transcript(ctx context.Context, videoID string) (Transcript, error) {
	transcript, err := w.captions.Transcript(ctx, videoID)
	if err == nil || !errors.Is(err, ErrNoCaptions) {
		return transcript, err
	}

	w.logger.Info("no captions, transcribing audio", slog.String("id", videoID))
	return w.TranscribeAudio(ctx, videoID)
}

// TranscribeAudio always goes through audio download and Whisper
func (w *WhisperFallback) TranscribeAudio(ctx context.Context, videoID string) (Transcript, error) {
	audioFile, err := w.downloader.Audio(ctx, videoID)
	if err != nil {
		return nil, asFetchError(err)
	}

	transcript, err := w.transcriber.Transcribe(ctx, audioFile)
	if err != nil {
		return nil, withKind(ErrNoCaptions, fmt.Errorf("whisper transcription of %s failed: %w", videoID, err))
	}
	return transcript, nil
}

// Fetchers bundles the retrieval backends chosen by configuration
type Fetchers struct {
	Metadata    MetadataFetcher
	Transcripts TranscriptFetcher
	// Whisper is set when audio transcription is available
	Whisper *WhisperFallback
}

// NewFetchers builds the metadata and transcript fetchers for config.Source.
// ai may be nil when no model key is configured; Whisper is then unavailable.
func NewFetchers(config *Config, ai *AI, logger *slog.Logger) (*Fetchers, error) {
	yt := NewYTDLP(config, logger)

	f := &Fetchers{}
	switch config.Source {
	case SourceYTDLP:
		f.Metadata = yt
		f.Transcripts = yt
	case SourceWeb, "":
		web, err := NewWebClient(config, logger)
		if err != nil {
			return nil, err
		}
		f.Metadata = web
		f.Transcripts = web
	default:
		return nil, fmt.Errorf("unknown source %q", config.Source)
	}

	if ai != nil && config.ModelAPIKey != "" {
		f.Whisper = NewWhisperFallback(f.Transcripts, yt, ai, logger)
		if config.FallbackWhisper {
			f.Transcripts = f.Whisper
		}
	}

	return f, nil
}

// shareFetch runs fn once per key for all concurrent callers. fn ignores the
// cancellation of whichever caller started it and must bound its own work.
// Each caller returns when its own ctx ends.
func shareFetch[T any](ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := group.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, withKind(ErrNetwork, ctx.Err())
	}
}
