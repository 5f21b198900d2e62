package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// App holds the application state and dependencies
type App struct {
	config   *Config
	logger   *slog.Logger
	cache    ContentStore
	fetchers *Fetchers
	ai       *AI
	model    ModelClient
	resolver *Resolver
	prompts  *PromptManager
	ui       UIManager
	closers  []io.Closer
}

// AppOption customizes App creation
type AppOption func(*App)

// WithFetchers replaces the configured metadata and transcript sources
func WithFetchers(fetchers *Fetchers) AppOption {
	return func(a *App) {
		a.fetchers = fetchers
	}
}

// WithStore replaces the cache opened from database_url
func WithStore(store ContentStore) AppOption {
	return func(a *App) {
		a.cache = store
	}
}

// WithModel replaces the OpenAI chat client
func WithModel(model ModelClient) AppOption {
	return func(a *App) {
		a.model = model
	}
}

// WithLogger sets the logger used by every component
func WithLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithUI sets a custom UI manager
func WithUI(ui UIManager) AppOption {
	return func(a *App) {
		a.ui = ui
	}
}

// NewApp initializes the application from config. Anything not supplied
// through options is built from config.
func NewApp(ctx context.Context, config *Config, options ...AppOption) (*App, error) {
	app := &App{config: config}
	for _, option := range options {
		option(app)
	}

	if app.logger == nil {
		logger, closer := NewLogger(config, AppName, false)
		app.logger = logger
		app.closers = append(app.closers, closer)
	}
	if app.ui == nil {
		app.ui = NewUIManager(config.Verbose, config.Quiet)
	}

	audio := NewAudio(&DefaultCommandRunner{}, config.TempDir)
	app.ai = NewAIFromConfig(config, audio, app.logger)
	if app.model == nil {
		app.model = app.ai
	}

	if app.fetchers == nil {
		fetchers, err := NewFetchers(config, app.ai, app.logger)
		if err != nil {
			return nil, err
		}
		app.fetchers = fetchers
	}

	if app.cache == nil {
		app.cache = OpenCache(ctx, config.DatabaseURL, app.logger)
	}
	app.closers = append(app.closers, app.cache)

	app.prompts = NewPromptManager(config.ConfigDir, config.Prompt)
	app.resolver = NewResolverFromConfig(config, app.fetchers, app.cache, app.logger)

	return app, nil
}

// UI returns the terminal UI manager
func (app *App) UI() UIManager {
	return app.ui
}

// NewSession starts an empty conversation
func (app *App) NewSession() *Session {
	return NewSession(app.resolver, app.model, app.prompts, app.config.SystemPrompt, app.logger)
}

// Ask answers a single message without keeping history
func (app *App) Ask(ctx context.Context, message string) (*Reply, error) {
	return app.AskWithStatus(ctx, message, false)
}

// AskWithStatus answers a single message with an optional spinner
func (app *App) AskWithStatus(ctx context.Context, message string, showStatus bool) (*Reply, error) {
	var spinner ProgressBar = &SilentProgressBar{}
	if showStatus {
		spinner = app.ui.NewSpinner("Reading videos and asking the model...")
	}
	defer spinner.Finish()

	return app.NewSession().Send(ctx, message)
}

// ResolveContext builds the context block for message
func (app *App) ResolveContext(ctx context.Context, message string) *Resolution {
	return app.ResolveContextWithStatus(ctx, message, false)
}

// ResolveContextWithStatus builds the context block with an optional spinner
func (app *App) ResolveContextWithStatus(ctx context.Context, message string, showStatus bool) *Resolution {
	var spinner ProgressBar = &SilentProgressBar{}
	if showStatus {
		spinner = app.ui.NewSpinner("Fetching YouTube content...")
	}
	defer spinner.Finish()

	res := app.resolver.ResolveContent(ctx, message)
	for _, failed := range res.Failures() {
		app.ui.Verbose("Unavailable: %s (%s)\n", failed.ID, FailureReason(failed.Err))
	}
	return res
}

// Metadata returns *VideoMetadata or *PlaylistMetadata for id.
// Cached records are used when present; nothing is written to the cache.
func (app *App) Metadata(ctx context.Context, id ContentID) (any, error) {
	return app.MetadataWithStatus(ctx, id, false)
}

// MetadataWithStatus gets metadata with optional status spinner
func (app *App) MetadataWithStatus(ctx context.Context, id ContentID, showStatus bool) (any, error) {
	var spinner ProgressBar = &SilentProgressBar{}
	if showStatus {
		spinner = app.ui.NewSpinner("Fetching metadata...")
	}
	defer spinner.Finish()

	if record, ok, err := app.cache.Lookup(ctx, id); err == nil && ok {
		app.ui.Verbose("Using cached metadata for %s\n", id)
		if record.Playlist != nil {
			return record.Playlist, nil
		}
		return &record.Metadata, nil
	}

	ctx, cancel := context.WithTimeout(ctx, app.config.RequestTimeout)
	defer cancel()

	switch id.Type {
	case ContentTypePlaylist:
		playlist, err := app.fetchers.Metadata.PlaylistMetadata(ctx, id.ID)
		if err != nil {
			return nil, asFetchError(err)
		}
		return playlist, nil
	case ContentTypeVideo:
		metadata, err := app.fetchers.Metadata.VideoMetadata(ctx, id.ID)
		if err != nil {
			return nil, asFetchError(err)
		}
		return metadata, nil
	default:
		return nil, fmt.Errorf("unsupported identifier %s", id)
	}
}

// Transcripts returns the resolved videos behind id: the video itself, or
// every member of a playlist. Results go through the cache.
func (app *App) Transcripts(ctx context.Context, id ContentID) ([]ResolvedItem, error) {
	return app.TranscriptsWithStatus(ctx, id, false)
}

// TranscriptsWithStatus is Transcripts with an optional spinner
func (app *App) TranscriptsWithStatus(ctx context.Context, id ContentID, showStatus bool) ([]ResolvedItem, error) {
	var spinner ProgressBar = &SilentProgressBar{}
	if showStatus {
		spinner = app.ui.NewSpinner("Fetching transcript...")
	}
	defer spinner.Finish()

	item := app.resolver.ResolveID(ctx, id)
	if item.Err != nil {
		return nil, item.Err
	}
	if item.Record.Playlist != nil {
		return item.Children, nil
	}
	return []ResolvedItem{item}, nil
}

// TranscribeWithWhisper always downloads the audio and transcribes it
func (app *App) TranscribeWithWhisper(ctx context.Context, videoID string) (Transcript, error) {
	return app.TranscribeWithWhisperStatus(ctx, videoID, false)
}

// TranscribeWithWhisperStatus is TranscribeWithWhisper with an optional spinner
func (app *App) TranscribeWithWhisperStatus(ctx context.Context, videoID string, showStatus bool) (Transcript, error) {
	if app.fetchers.Whisper == nil {
		return nil, fmt.Errorf("whisper transcription unavailable: %w", ErrMissingAPIKey)
	}

	var spinner ProgressBar = &SilentProgressBar{}
	if showStatus {
		spinner = app.ui.NewSpinner("Downloading and transcribing audio...")
	}
	defer spinner.Finish()

	return app.fetchers.Whisper.TranscribeAudio(ctx, videoID)
}

// Close releases the cache connection and the log file
func (app *App) Close() error {
	var errs []error
	for _, c := range app.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TranscriptText renders transcripts of several videos, separated by titles
func TranscriptText(items []ResolvedItem, timestamps bool) string {
	f := NewContextFormatter(timestamps)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Err != nil || item.Record == nil {
			parts = append(parts, UnavailableMarker(item.ID, item.Err))
			continue
		}
		text := f.transcript(item.Record.Transcript)
		if len(items) > 1 {
			text = "# " + item.Record.Title() + "\n\n" + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}
