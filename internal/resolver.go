package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/rtzll/tubetalk/internal"

// ResolvedItem is the outcome for one identifier found in a message.
// Exactly one of Record and Err is set. Children holds the member videos of a playlist.
type ResolvedItem struct {
	ID       ContentID
	Record   *ContentRecord
	Err      error
	CacheHit bool
	Children []ResolvedItem
}

// Resolution is everything resolved for one message, in extraction order
type Resolution struct {
	Items   []ResolvedItem
	Context string
}

// Videos counts the videos that made it into the context
func (r *Resolution) Videos() int {
	if r == nil {
		return 0
	}
	return countVideos(r.Items)
}

// Failures lists the identifiers that were replaced by an unavailable marker
func (r *Resolution) Failures() []ResolvedItem {
	if r == nil {
		return nil
	}
	var failed []ResolvedItem
	var walk func(items []ResolvedItem)
	walk = func(items []ResolvedItem) {
		for _, item := range items {
			if item.Err != nil {
				failed = append(failed, item)
			}
			walk(item.Children)
		}
	}
	walk(r.Items)
	return failed
}

// Resolver turns the YouTube links of a message into a context block,
// reading through the content cache and fetching what is missing.
type Resolver struct {
	metadata    MetadataFetcher
	transcripts TranscriptFetcher
	cache       ContentStore
	formatter   *ContextFormatter
	timeout     time.Duration
	workers     int
	now         func() time.Time
	logger      *slog.Logger
	flights     singleflight.Group
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache sets the content store; nil disables caching
func WithCache(cache ContentStore) ResolverOption {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithFetchTimeout bounds each metadata and transcript call
func WithFetchTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithWorkers limits how many identifiers are resolved at once
func WithWorkers(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithTimestamps toggles [mm:ss] offsets in transcripts
func WithTimestamps(on bool) ResolverOption {
	return func(r *Resolver) {
		r.formatter = NewContextFormatter(on)
	}
}

// WithClock overrides the fetched_at clock
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver with no cache, 30s fetch timeout and 4 workers
func NewResolver(metadata MetadataFetcher, transcripts TranscriptFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		metadata:    metadata,
		transcripts: transcripts,
		cache:       NoopStore{},
		formatter:   NewContextFormatter(true),
		timeout:     30 * time.Second,
		workers:     4,
		now:         time.Now,
		logger:      discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewResolverFromConfig wires a resolver from configuration
func NewResolverFromConfig(config *Config, fetchers *Fetchers, cache ContentStore, logger *slog.Logger) *Resolver {
	return NewResolver(fetchers.Metadata, fetchers.Transcripts,
		WithCache(cache),
		WithFetchTimeout(config.RequestTimeout),
		WithWorkers(config.Workers),
		WithTimestamps(config.Timestamps),
		WithResolverLogger(logger),
	)
}

// Resolve returns the context block for message, or "" when it has no links
func (r *Resolver) Resolve(ctx context.Context, message string) string {
	return r.ResolveContent(ctx, message).Context
}

// ResolveContent resolves every identifier in message. Fetch failures become
// markers in the context; they never fail the whole resolution.
func (r *Resolver) ResolveContent(ctx context.Context, message string) *Resolution {
	ids := ExtractIDs(message)
	if len(ids) == 0 {
		return &Resolution{}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("ids", len(ids)))

	items := r.resolveAll(ctx, ids)
	res := &Resolution{Items: items, Context: r.formatter.Format(items)}

	span.SetAttributes(attribute.Int("videos", res.Videos()), attribute.Int("failed", len(res.Failures())))
	return res
}

// ResolveID resolves a single identifier through the cache
func (r *Resolver) ResolveID(ctx context.Context, id ContentID) ResolvedItem {
	return r.resolveItem(ctx, id)
}

// resolveAll runs up to r.workers identifiers at a time and keeps input order
func (r *Resolver) resolveAll(ctx context.Context, ids []ContentID) []ResolvedItem {
	items := make([]ResolvedItem, len(ids))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, id := range ids {
		g.Go(func() error {
			items[i] = r.resolveItem(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (r *Resolver) resolveItem(ctx context.Context, id ContentID) ResolvedItem {
	start := time.Now()
	var item ResolvedItem
	switch id.Type {
	case ContentTypePlaylist:
		item = r.resolvePlaylist(ctx, id)
	case ContentTypeVideo:
		item = r.resolveVideo(ctx, id)
	default:
		item = ResolvedItem{ID: id, Err: notFoundf("unsupported identifier %s", id)}
	}

	if item.Err != nil {
		r.logger.Warn("content unavailable", slog.String("id", id.String()),
			slog.String("reason", FailureReason(item.Err)), slog.Any("err", item.Err))
	} else {
		r.logger.Info("content resolved", slog.String("id", id.String()),
			slog.Bool("cache_hit", item.CacheHit), slog.Duration("duration", time.Since(start)))
	}
	return item
}

// lookup treats storage failures as a miss
func (r *Resolver) lookup(ctx context.Context, id ContentID) (*ContentRecord, bool) {
	record, ok, err := r.cache.Lookup(ctx, id)
	if err != nil {
		r.logger.Warn("cache lookup failed", slog.String("id", id.String()), slog.Any("err", err))
		return nil, false
	}
	if !ok || record == nil {
		return nil, false
	}
	return record, true
}

// store logs and drops storage failures. It runs detached from ctx so a
// cancelled request still keeps what was already fetched.
func (r *Resolver) store(ctx context.Context, record *ContentRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.cache.Store(ctx, record); err != nil {
		r.logger.Warn("cache store failed", slog.String("id", record.ID.String()), slog.Any("err", err))
	}
}

func (r *Resolver) resolveVideo(ctx context.Context, id ContentID) ResolvedItem {
	if record, ok := r.lookup(ctx, id); ok {
		return ResolvedItem{ID: id, Record: record, CacheHit: true}
	}

	// concurrent requests for the same video share one fetch
	record, err := shareFetch(ctx, &r.flights, id.Key(), func(ctx context.Context) (*ContentRecord, error) {
		record, err := r.fetchVideo(ctx, id)
		if err != nil {
			return nil, err
		}
		r.store(ctx, record)
		return record, nil
	})
	if err != nil {
		return ResolvedItem{ID: id, Err: err}
	}
	return ResolvedItem{ID: id, Record: record}
}

// fetchVideo gets metadata and transcript concurrently
func (r *Resolver) fetchVideo(ctx context.Context, id ContentID) (*ContentRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.fetch_video")
	defer span.End()
	span.SetAttributes(attribute.String("video_id", id.ID))

	var (
		metadata   *VideoMetadata
		transcript Transcript
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, r.timeout)
		defer cancel()
		m, err := r.metadata.VideoMetadata(callCtx, id.ID)
		if err != nil {
			return asFetchError(fmt.Errorf("metadata for %s: %w", id.ID, err))
		}
		metadata = m
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, r.timeout)
		defer cancel()
		t, err := r.transcripts.Transcript(callCtx, id.ID)
		if err != nil {
			return asFetchError(fmt.Errorf("transcript for %s: %w", id.ID, err))
		}
		transcript = t
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureReason(err))
		return nil, err
	}

	if metadata == nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("metadata for %s: empty response", id.ID))
	}
	if transcript == nil {
		transcript = Transcript{}
	}
	meta := *metadata
	if meta.ID == "" {
		meta.ID = id.ID
	}

	return &ContentRecord{
		ID:         id,
		Metadata:   meta,
		Transcript: transcript,
		FetchedAt:  r.now().UTC(),
	}, nil
}

// resolvePlaylist resolves the playlist record and then each member video as
// its own cached identifier
func (r *Resolver) resolvePlaylist(ctx context.Context, id ContentID) ResolvedItem {
	record, hit := r.lookup(ctx, id)
	if !hit {
		var err error
		record, err = shareFetch(ctx, &r.flights, id.Key(), func(ctx context.Context) (*ContentRecord, error) {
			record, err := r.fetchPlaylist(ctx, id)
			if err != nil {
				return nil, err
			}
			r.store(ctx, record)
			return record, nil
		})
		if err != nil {
			return ResolvedItem{ID: id, Err: err}
		}
	}

	if record.Playlist == nil {
		return ResolvedItem{ID: id, Err: withKind(ErrNotFound, fmt.Errorf("cached playlist %s has no members", id.ID))}
	}

	members := make([]ContentID, 0, len(record.Playlist.Videos))
	seen := make(map[string]bool, len(record.Playlist.Videos))
	for _, v := range record.Playlist.Videos {
		if v.ID == "" || seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		members = append(members, VideoID(v.ID))
	}

	children := make([]ResolvedItem, len(members))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, member := range members {
		g.Go(func() error {
			children[i] = r.resolveVideo(ctx, member)
			return nil
		})
	}
	_ = g.Wait()

	return ResolvedItem{ID: id, Record: record, CacheHit: hit, Children: children}
}

func (r *Resolver) fetchPlaylist(ctx context.Context, id ContentID) (*ContentRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.fetch_playlist")
	defer span.End()
	span.SetAttributes(attribute.String("playlist_id", id.ID))

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	playlist, err := r.metadata.PlaylistMetadata(callCtx, id.ID)
	if err != nil {
		err = asFetchError(fmt.Errorf("playlist %s: %w", id.ID, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureReason(err))
		return nil, err
	}
	if playlist == nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("playlist %s: empty response", id.ID))
	}

	p := *playlist
	if p.ID == "" {
		p.ID = id.ID
	}
	return &ContentRecord{
		ID:        id,
		Metadata:  VideoMetadata{ID: id.ID, Title: p.Title, Channel: p.Channel},
		Playlist:  &p,
		FetchedAt: r.now().UTC(),
	}, nil
}
