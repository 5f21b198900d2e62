package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// ContentStore persists resolved content. Lookup reports ok=false on a miss.
// Store replaces the whole record for its identifier.
type ContentStore interface {
	Lookup(ctx context.Context, id ContentID) (*ContentRecord, bool, error)
	Store(ctx context.Context, record *ContentRecord) error
	Close() error
}

// OpenStore picks a store implementation from the connection string scheme.
// An empty string gives a NoopStore.
func OpenStore(ctx context.Context, dsn string) (ContentStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NoopStore{}, nil
	}

	scheme := dsn
	if i := strings.Index(dsn, ":"); i >= 0 {
		scheme = strings.ToLower(dsn[:i])
	}

	var (
		store ContentStore
		err   error
	)
	switch scheme {
	case "postgres", "postgresql":
		store, err = OpenPostgresStore(ctx, dsn)
	case "sqlite", "sqlite3":
		store, err = OpenSQLiteStore(ctx, sqlitePath(dsn))
	case "redis", "rediss":
		store, err = OpenRedisStore(ctx, dsn)
	case "file":
		store, err = NewFileStore(fileStoreDir(dsn))
	case "memory":
		store = NewMemoryStore(0)
	default:
		err = fmt.Errorf("unsupported database_url scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// fileStoreDir accepts file:///abs/dir, file://rel/dir and file:dir
func fileStoreDir(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Opaque == "" {
		return u.Host + u.Path
	}
	return strings.TrimPrefix(strings.TrimPrefix(dsn, "file://"), "file:")
}

// OpenCache opens the configured store behind an in-memory tier.
// Connection failures disable caching instead of failing the caller.
func OpenCache(ctx context.Context, dsn string, logger *slog.Logger) ContentStore {
	if logger == nil {
		logger = discardLogger()
	}
	store, err := OpenStore(ctx, dsn)
	if err != nil {
		logger.Warn("cache unavailable, running without cache", slog.Any("err", err))
		return NoopStore{}
	}
	if _, ok := store.(NoopStore); ok {
		return store
	}
	if _, ok := store.(*MemoryStore); ok {
		return store
	}
	return NewTieredStore(NewMemoryStore(1024), store)
}

// sqlitePath strips the sqlite:// or sqlite: prefix
func sqlitePath(dsn string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if strings.HasPrefix(strings.ToLower(dsn), prefix) {
			return dsn[len(prefix):]
		}
	}
	return dsn
}

// NoopStore is used when no cache is configured: every lookup misses and stores are dropped
type NoopStore struct{}

func (NoopStore) Lookup(context.Context, ContentID) (*ContentRecord, bool, error) {
	return nil, false, nil
}

func (NoopStore) Store(context.Context, *ContentRecord) error { return nil }

func (NoopStore) Close() error { return nil }

// MemoryStore keeps records in process memory. A positive limit evicts the
// oldest inserted identifiers first.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[ContentID]*ContentRecord
	order   []ContentID
	limit   int
}

// NewMemoryStore creates an empty memory store; limit <= 0 means unbounded
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		records: make(map[ContentID]*ContentRecord),
		limit:   limit,
	}
}

func (m *MemoryStore) Lookup(_ context.Context, id ContentID) (*ContentRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *MemoryStore) Store(_ context.Context, record *ContentRecord) error {
	if record == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; !exists {
		m.order = append(m.order, record.ID)
	}
	m.records[record.ID] = cloneRecord(record)

	for m.limit > 0 && len(m.order) > m.limit {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.records, oldest)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of cached records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// cloneRecord copies the slices so callers can't mutate stored records
func cloneRecord(r *ContentRecord) *ContentRecord {
	c := *r
	if r.Transcript != nil {
		c.Transcript = append(Transcript{}, r.Transcript...)
	}
	if r.Playlist != nil {
		p := *r.Playlist
		p.Videos = append([]VideoMetadata(nil), r.Playlist.Videos...)
		c.Playlist = &p
	}
	return &c
}

// TieredStore checks a memory tier before the persistent store and fills it on L2 hits
type TieredStore struct {
	l1 *MemoryStore
	l2 ContentStore
}

// NewTieredStore layers l1 in front of l2
func NewTieredStore(l1 *MemoryStore, l2 ContentStore) *TieredStore {
	return &TieredStore{l1: l1, l2: l2}
}

func (t *TieredStore) Lookup(ctx context.Context, id ContentID) (*ContentRecord, bool, error) {
	if rec, ok, _ := t.l1.Lookup(ctx, id); ok {
		return rec, true, nil
	}
	rec, ok, err := t.l2.Lookup(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.l1.Store(ctx, rec)
	return rec, true, nil
}

func (t *TieredStore) Store(ctx context.Context, record *ContentRecord) error {
	_ = t.l1.Store(ctx, record)
	return t.l2.Store(ctx, record)
}

func (t *TieredStore) Close() error {
	return t.l2.Close()
}
