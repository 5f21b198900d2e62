package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type sqlDialect int

const (
	dialectPostgres sqlDialect = iota
	dialectSQLite
)

// SQLStore keeps one row per identifier in content_records.
// The payload column holds the full record; the other columns are for humans and queries.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

var neonHostRE = regexp.MustCompile(`@([^.:/]+)\.[^/]*neon\.tech`)

// withNeonEndpoint adds the endpoint option Neon needs for clients without SNI support
func withNeonEndpoint(dsn string) string {
	if !strings.Contains(dsn, "neon.tech") || strings.Contains(dsn, "options=endpoint") {
		return dsn
	}
	m := neonHostRE.FindStringSubmatch(dsn)
	if m == nil {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "options=" + url.QueryEscape("endpoint="+m[1])
}

// OpenPostgresStore connects through pgx's database/sql driver and creates the table
func OpenPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", withNeonEndpoint(dsn))
	if err != nil {
		return nil, withKind(ErrStorage, fmt.Errorf("open postgres: %w", err))
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return initSQLStore(ctx, db, dialectPostgres)
}

// OpenSQLiteStore opens (or creates) a SQLite database file
func OpenSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, withKind(ErrStorage, errors.New("sqlite path is empty"))
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, withKind(ErrStorage, fmt.Errorf("sqlite: mkdir: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, withKind(ErrStorage, fmt.Errorf("open sqlite: %w", err))
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, withKind(ErrStorage, fmt.Errorf("sqlite pragma: %w", err))
	}

	return initSQLStore(ctx, db, dialectSQLite)
}

func initSQLStore(ctx context.Context, db *sql.DB, dialect sqlDialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, withKind(ErrStorage, fmt.Errorf("ping database: %w", err))
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, withKind(ErrStorage, fmt.Errorf("init schema: %w", err))
	}
	return s, nil
}

// initSchema creates the content_records table if it doesn't exist
func (s *SQLStore) initSchema(ctx context.Context) error {
	timestampType := "TIMESTAMPTZ"
	if s.dialect == dialectSQLite {
		timestampType = "DATETIME"
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS content_records (
		kind            TEXT NOT NULL,
		id              TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		channel         TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		transcript_text TEXT NOT NULL DEFAULT '',
		payload         TEXT NOT NULL,
		fetched_at      `+timestampType+` NOT NULL,
		PRIMARY KEY (kind, id)
	)`)
	return err
}

var placeholderRE = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders for SQLite
func (s *SQLStore) rebind(query string) string {
	if s.dialect == dialectSQLite {
		return placeholderRE.ReplaceAllString(query, "?")
	}
	return query
}

func (s *SQLStore) Lookup(ctx context.Context, id ContentID) (*ContentRecord, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload FROM content_records WHERE kind = $1 AND id = $2`),
		id.Type.String(), id.ID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("lookup %s: %w", id, err))
	}

	var record ContentRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("decoding %s: %w", id, err))
	}
	return &record, true, nil
}

// Store upserts the whole record in a single statement, last write wins
func (s *SQLStore) Store(ctx context.Context, record *ContentRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return withKind(ErrStorage, fmt.Errorf("encoding %s: %w", record.ID, err))
	}

	description := record.Metadata.Description
	transcriptText := record.Transcript.Text()
	if record.Playlist != nil {
		description = ""
		transcriptText = ""
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO content_records (kind, id, title, channel, description, transcript_text, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (kind, id) DO UPDATE SET
			title = excluded.title,
			channel = excluded.channel,
			description = excluded.description,
			transcript_text = excluded.transcript_text,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`),
		record.ID.Type.String(), record.ID.ID, record.Title(), record.Channel(),
		description, transcriptText, string(payload), record.FetchedAt.UTC(),
	)
	if err != nil {
		return withKind(ErrStorage, fmt.Errorf("store %s: %w", record.ID, err))
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
