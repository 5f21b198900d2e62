package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore saves each record as JSON under <dir>/<kind>/<id>.json
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, withKind(ErrStorage, errors.New("file store directory is empty"))
	}
	if err := EnsureDirs(dir); err != nil {
		return nil, withKind(ErrStorage, fmt.Errorf("creating cache directory: %w", err))
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id ContentID) string {
	return filepath.Join(f.dir, id.Type.String(), id.ID+".json")
}

func (f *FileStore) Lookup(_ context.Context, id ContentID) (*ContentRecord, bool, error) {
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("reading cached %s: %w", id, err))
	}

	var record ContentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("parsing cached %s: %w", id, err))
	}
	return &record, true, nil
}

// Store writes to a temp file and renames it so readers never see a partial record
func (f *FileStore) Store(_ context.Context, record *ContentRecord) error {
	path := f.path(record.ID)
	if err := EnsureDirs(filepath.Dir(path)); err != nil {
		return withKind(ErrStorage, fmt.Errorf("creating cache directory: %w", err))
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return withKind(ErrStorage, fmt.Errorf("marshaling %s: %w", record.ID, err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return withKind(ErrStorage, fmt.Errorf("saving %s: %w", record.ID, err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return withKind(ErrStorage, fmt.Errorf("saving %s: %w", record.ID, err))
	}
	if err := tmp.Close(); err != nil {
		return withKind(ErrStorage, fmt.Errorf("saving %s: %w", record.ID, err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return withKind(ErrStorage, fmt.Errorf("saving %s: %w", record.ID, err))
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
