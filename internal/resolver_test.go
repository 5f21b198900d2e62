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

// fakeYouTube serves canned metadata and transcripts and counts calls
type fakeYouTube struct {
	mu          sync.Mutex
	videos      map[string]VideoMetadata
	transcripts map[string]Transcript
	playlists   map[string]PlaylistMetadata
	metaErr     map[string]error
	captionErr  map[string]error
	delay       map[string]time.Duration
	gate        map[string]chan struct{}
	block       bool

	metaCalls     int
	captionCalls  int
	playlistCalls int
}

func newFakeYouTube() *fakeYouTube {
	return &fakeYouTube{
		videos:      map[string]VideoMetadata{},
		transcripts: map[string]Transcript{},
		playlists:   map[string]PlaylistMetadata{},
		metaErr:     map[string]error{},
		captionErr:  map[string]error{},
		delay:       map[string]time.Duration{},
		gate:        map[string]chan struct{}{},
	}
}

func (f *fakeYouTube) addVideo(id, title string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[id] = VideoMetadata{ID: id, Title: title, Channel: "Channel " + title, Description: "About " + title}
	t := Transcript{}
	for i, line := range lines {
		t = append(t, TranscriptSegment{Start: time.Duration(i*5) * time.Second, Duration: 5 * time.Second, Text: line})
	}
	f.transcripts[id] = t
}

func (f *fakeYouTube) wait(ctx context.Context, id string) error {
	f.mu.Lock()
	d, gate, block := f.delay[id], f.gate[id], f.block
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeYouTube) VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	f.mu.Lock()
	f.metaCalls++
	f.mu.Unlock()
	if err := f.wait(ctx, videoID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.metaErr[videoID]; err != nil {
		return nil, err
	}
	v, ok := f.videos[videoID]
	if !ok {
		return nil, notFoundf("video %s not found", videoID)
	}
	return &v, nil
}

func (f *fakeYouTube) Transcript(ctx context.Context, videoID string) (Transcript, error) {
	f.mu.Lock()
	f.captionCalls++
	f.mu.Unlock()
	if err := f.wait(ctx, videoID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.captionErr[videoID]; err != nil {
		return nil, err
	}
	t, ok := f.transcripts[videoID]
	if !ok {
		return nil, noCaptionsf("video %s has no captions", videoID)
	}
	return append(Transcript{}, t...), nil
}

func (f *fakeYouTube) PlaylistMetadata(_ context.Context, playlistID string) (*PlaylistMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistCalls++
	p, ok := f.playlists[playlistID]
	if !ok {
		return nil, notFoundf("playlist %s not found", playlistID)
	}
	return &p, nil
}

func (f *fakeYouTube) calls() (meta, captions, playlists int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaCalls, f.captionCalls, f.playlistCalls
}

// brokenStore fails every operation
type brokenStore struct{}

func (brokenStore) Lookup(context.Context, ContentID) (*ContentRecord, bool, error) {
	return nil, false, withKind(ErrStorage, errors.New("connection refused"))
}

func (brokenStore) Store(context.Context, *ContentRecord) error {
	return withKind(ErrStorage, errors.New("connection refused"))
}

func (brokenStore) Close() error { return nil }

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func newTestResolver(yt *fakeYouTube, opts ...ResolverOption) *Resolver {
	opts = append([]ResolverOption{WithClock(fixedClock), WithFetchTimeout(time.Second)}, opts...)
	return NewResolver(yt, yt, opts...)
}

func TestResolveWithoutLinksMakesNoCalls(t *testing.T) {
	yt := newFakeYouTube()
	r := newTestResolver(yt, WithCache(NewMemoryStore(0)))

	res := r.ResolveContent(context.Background(), "hello there, no videos today")

	assert.Empty(t, res.Context)
	assert.Empty(t, res.Items)
	meta, captions, playlists := yt.calls()
	assert.Zero(t, meta+captions+playlists)
}

func TestResolveDeduplicatesLinkForms(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("abc123", "Demo", "hello")
	r := newTestResolver(yt)

	res := r.ResolveContent(context.Background(),
		"see https://www.youtube.com/watch?v=abc123 and also https://youtu.be/abc123")

	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Videos())
	assert.Equal(t, 1, strings.Count(res.Context, "<VIDEO_TITLE>Demo</VIDEO_TITLE>"))
	meta, captions, _ := yt.calls()
	assert.Equal(t, 1, meta)
	assert.Equal(t, 1, captions)
}

func TestResolveWarmCacheSkipsFetchesAndMatchesBytes(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("abc123", "Demo", "hello", "world")
	yt.addVideo("def456", "Other", "foo")
	r := newTestResolver(yt, WithCache(NewMemoryStore(0)))
	msg := "compare https://youtu.be/abc123 with https://youtu.be/def456"

	cold := r.ResolveContent(context.Background(), msg)
	meta, captions, _ := yt.calls()
	require.Equal(t, 2, meta)
	require.Equal(t, 2, captions)

	warm := r.ResolveContent(context.Background(), msg)
	meta, captions, _ = yt.calls()
	assert.Equal(t, 2, meta, "warm cache must not fetch metadata")
	assert.Equal(t, 2, captions, "warm cache must not fetch transcripts")
	assert.Equal(t, cold.Context, warm.Context)
	for _, item := range warm.Items {
		assert.True(t, item.CacheHit)
	}
}

func TestResolveWarmSQLiteCacheMatchesBytes(t *testing.T) {
	store, err := OpenSQLiteStore(context.Background(), t.TempDir()+"/cache.db")
	require.NoError(t, err)
	defer store.Close()

	yt := newFakeYouTube()
	yt.addVideo("abc123", "Demo", "hello", "world")
	r := newTestResolver(yt, WithCache(store))

	cold := r.Resolve(context.Background(), "https://youtu.be/abc123")
	// a fresh resolver sees only what was persisted
	warm := newTestResolver(yt, WithCache(store)).Resolve(context.Background(), "https://youtu.be/abc123")

	assert.Equal(t, cold, warm)
	meta, _, _ := yt.calls()
	assert.Equal(t, 1, meta)
}

func TestResolveKeepsExtractionOrder(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("aaaaaaaaaaa", "Video A", "from a")
	yt.addVideo("bbbbbbbbbbb", "Video B", "from b")
	// B finishes last; it must still come first
	yt.delay["bbbbbbbbbbb"] = 50 * time.Millisecond
	r := newTestResolver(yt)

	res := r.ResolveContent(context.Background(), "first https://youtu.be/bbbbbbbbbbb then https://youtu.be/aaaaaaaaaaa")

	require.Len(t, res.Items, 2)
	assert.Equal(t, "bbbbbbbbbbb", res.Items[0].ID.ID)
	assert.Equal(t, "aaaaaaaaaaa", res.Items[1].ID.ID)
	assert.Less(t, strings.Index(res.Context, "Video B"), strings.Index(res.Context, "Video A"))
	assert.Contains(t, res.Context, nextVideoSeparator)
}

func TestResolvePartialFailureInsertsMarker(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("goodvideo11", "Good", "works")
	store := NewMemoryStore(0)
	r := newTestResolver(yt, WithCache(store))

	res := r.ResolveContent(context.Background(), "https://youtu.be/goodvideo11 https://youtu.be/missingvid1")

	require.Len(t, res.Items, 2)
	assert.NoError(t, res.Items[0].Err)
	assert.ErrorIs(t, res.Items[1].Err, ErrNotFound)
	assert.Contains(t, res.Context, "<VIDEO_TITLE>Good</VIDEO_TITLE>")
	assert.Contains(t, res.Context, "[metadata/transcript unavailable for missingvid1: not found]")
	assert.Equal(t, 1, res.Videos())
	require.Len(t, res.Failures(), 1)

	_, ok, err := store.Lookup(context.Background(), VideoID("missingvid1"))
	require.NoError(t, err)
	assert.False(t, ok, "failures must not be cached")
}

func TestResolveFailureIsRetriedNextTime(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("flaky123456", "Flaky", "eventually")
	yt.metaErr["flaky123456"] = withKind(ErrNetwork, errors.New("connection reset"))
	r := newTestResolver(yt, WithCache(NewMemoryStore(0)))

	first := r.ResolveContent(context.Background(), "https://youtu.be/flaky123456")
	assert.Contains(t, first.Context, "unavailable for flaky123456: network error")

	yt.mu.Lock()
	delete(yt.metaErr, "flaky123456")
	yt.mu.Unlock()

	second := r.ResolveContent(context.Background(), "https://youtu.be/flaky123456")
	assert.Contains(t, second.Context, "<VIDEO_TITLE>Flaky</VIDEO_TITLE>")
}

func TestResolveNoCaptionsMarker(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("silent12345", "Silent")
	yt.captionErr["silent12345"] = noCaptionsf("no tracks")
	r := newTestResolver(yt)

	ctx := r.Resolve(context.Background(), "https://youtu.be/silent12345")

	assert.Contains(t, ctx, "[metadata/transcript unavailable for silent12345: no captions]")
	assert.Contains(t, ctx, "YouTube Content (0 videos):")
}

func TestResolveStorageErrorsBehaveAsMisses(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("abc123", "Demo", "hello")
	r := newTestResolver(yt, WithCache(brokenStore{}))

	res := r.ResolveContent(context.Background(), "https://youtu.be/abc123")

	require.Len(t, res.Items, 1)
	assert.NoError(t, res.Items[0].Err)
	assert.False(t, res.Items[0].CacheHit)
	assert.Contains(t, res.Context, "Demo")
}

func TestResolveDemoExample(t *testing.T) {
	yt := newFakeYouTube()
	yt.videos["abc123"] = VideoMetadata{ID: "abc123", Title: "Demo", Channel: "Demo Channel"}
	yt.transcripts["abc123"] = Transcript{
		{Start: 0, Text: "hello"},
		{Start: 5 * time.Second, Text: "world"},
	}
	r := newTestResolver(yt)

	ctx := r.Resolve(context.Background(), "What is this about? https://youtu.be/abc123")

	demo := strings.Index(ctx, "Demo")
	hello := strings.Index(ctx, "hello")
	world := strings.Index(ctx, "world")
	require.True(t, demo >= 0 && hello >= 0 && world >= 0, ctx)
	assert.Less(t, demo, hello)
	assert.Less(t, hello, world)
	assert.Contains(t, ctx, "[00:00] hello\n[00:05] world")
}

func TestResolveEmptyTranscriptIsValid(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("quiet123456", "Quiet")
	store := NewMemoryStore(0)
	r := newTestResolver(yt, WithCache(store))

	res := r.ResolveContent(context.Background(), "https://youtu.be/quiet123456")

	require.NoError(t, res.Items[0].Err)
	assert.Equal(t, 1, res.Videos())
	rec, ok, err := store.Lookup(context.Background(), VideoID("quiet123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, rec.Transcript)
	assert.Equal(t, fixedClock(), rec.FetchedAt)
}

func TestResolveTimeoutIsNetworkError(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("slow1234567", "Slow", "never")
	yt.block = true
	r := NewResolver(yt, yt, WithFetchTimeout(20*time.Millisecond))

	res := r.ResolveContent(context.Background(), "https://youtu.be/slow1234567")

	require.Len(t, res.Items, 1)
	assert.ErrorIs(t, res.Items[0].Err, ErrNetwork)
	assert.Contains(t, res.Context, "unavailable for slow1234567: network error")
}

func TestResolvePlaylistCachesMembersIndividually(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("member00001", "First", "one")
	yt.addVideo("member00002", "Second", "two")
	yt.playlists["PLtest"] = PlaylistMetadata{
		ID:    "PLtest",
		Title: "My Playlist",
		Videos: []VideoMetadata{
			{ID: "member00001", Title: "First"},
			{ID: "member00002", Title: "Second"},
			{ID: "member00003", Title: "Deleted"},
		},
	}
	store := NewMemoryStore(0)
	r := newTestResolver(yt, WithCache(store))

	res := r.ResolveContent(context.Background(), "https://www.youtube.com/playlist?list=PLtest")

	require.Len(t, res.Items, 1)
	pl := res.Items[0]
	require.NoError(t, pl.Err)
	require.Len(t, pl.Children, 3)
	assert.Equal(t, 2, res.Videos())
	assert.Contains(t, res.Context, "<PLAYLIST_TITLE>My Playlist</PLAYLIST_TITLE>")
	assert.Less(t, strings.Index(res.Context, "First"), strings.Index(res.Context, "Second"))
	assert.Contains(t, res.Context, "unavailable for member00003")

	meta, _, _ := yt.calls()
	direct := r.ResolveContent(context.Background(), "https://youtu.be/member00002")
	after, _, _ := yt.calls()
	assert.Equal(t, meta, after, "member video should come from the cache")
	assert.True(t, direct.Items[0].CacheHit)

	_, _, playlists := yt.calls()
	r.ResolveContent(context.Background(), "https://www.youtube.com/playlist?list=PLtest")
	_, _, playlistsAfter := yt.calls()
	assert.Equal(t, playlists, playlistsAfter)
}

func TestResolveConcurrentRequestsShareFetch(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("shared12345", "Shared", "once")
	yt.delay["shared12345"] = 30 * time.Millisecond
	r := newTestResolver(yt)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), "https://youtu.be/shared12345")
		}()
	}
	wg.Wait()

	meta, _, _ := yt.calls()
	assert.Less(t, meta, 5)
}

func TestResolveCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	yt := newFakeYouTube()
	yt.addVideo("shared12345", "Shared", "once")
	release := make(chan struct{})
	yt.gate["shared12345"] = release
	r := newTestResolver(yt, WithFetchTimeout(5*time.Second))
	id := VideoID("shared12345")

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan ResolvedItem, 1)
	go func() { first <- r.ResolveID(ctx, id) }()
	require.Eventually(t, func() bool {
		meta, _, _ := yt.calls()
		return meta == 1
	}, time.Second, time.Millisecond)

	second := make(chan ResolvedItem, 1)
	go func() { second <- r.ResolveID(context.Background(), id) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	canceled := <-first
	assert.ErrorIs(t, canceled.Err, context.Canceled)

	close(release)
	shared := <-second
	require.NoError(t, shared.Err)
	assert.Equal(t, "Shared", shared.Record.Metadata.Title)

	meta, _, _ := yt.calls()
	assert.Equal(t, 1, meta)
}
