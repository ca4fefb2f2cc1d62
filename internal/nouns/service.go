package nouns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sqlscout/sqlscout/internal/storage"
)

// Service ties extraction, indexing and snapshot sharing together.
type Service struct {
	Extractor  *Extractor
	Index      *Index
	Store      storage.ObjectStore
	Collection string
	Columns    []ColumnRef
	TopK       int
	// MaxSnapshotAge bounds how old a stored snapshot may be before Restore
	// ignores it. Zero means any snapshot is accepted.
	MaxSnapshotAge time.Duration
	Logger         *slog.Logger
}

// Reindex pulls distinct values from every configured column, rebuilds the
// vector index and, when an object store is configured, uploads a parquet
// snapshot of the embedded entries.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if len(s.Columns) == 0 {
		return 0, fmt.Errorf("no noun columns configured")
	}

	values, err := s.Extractor.Extract(ctx, s.Columns)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no values found in configured columns")
	}

	entries, err := s.Index.Rebuild(ctx, values)
	if err != nil {
		return 0, err
	}
	s.Logger.Info("noun index rebuilt", "entries", len(entries), "columns", len(s.Columns))

	if s.Store != nil {
		if err := s.uploadSnapshot(ctx, entries); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Restore loads the latest snapshot from the object store into the index.
// A missing or stale snapshot is not an error, it just restores nothing.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.Store == nil {
		return 0, nil
	}
	key, err := storage.BuildSnapshotPath(s.Collection)
	if err != nil {
		return 0, err
	}

	info, err := s.Store.Stat(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.Logger.Info("no noun snapshot found", "key", key)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}
	age := time.Since(info.LastModified)
	if s.MaxSnapshotAge > 0 && !info.LastModified.IsZero() && age > s.MaxSnapshotAge {
		s.Logger.Warn("noun snapshot too old, skipping restore",
			"key", key, "age", age.Round(time.Second).String(), "max_age", s.MaxSnapshotAge.String())
		return 0, nil
	}

	reader, err := s.Store.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.Logger.Info("no noun snapshot found", "key", key)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	entries, err := DecodeSnapshot(data)
	if err != nil {
		return 0, err
	}
	if err := s.Index.Restore(ctx, entries); err != nil {
		return 0, err
	}
	s.Logger.Info("noun index restored from snapshot",
		"key", key, "entries", len(entries), "bytes", info.Size, "age", age.Round(time.Second).String())
	return len(entries), nil
}

// Search looks up index values near the term. A non-positive topK falls back
// to the configured default.
func (s *Service) Search(ctx context.Context, term string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = s.TopK
	}
	return s.Index.Search(ctx, term, topK)
}

func (s *Service) uploadSnapshot(ctx context.Context, entries []SnapshotEntry) error {
	key, err := storage.BuildSnapshotPath(s.Collection)
	if err != nil {
		return err
	}
	data, err := EncodeSnapshot(entries)
	if err != nil {
		return err
	}
	_, err = s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	s.Logger.Info("noun snapshot uploaded", "key", key, "bytes", len(data))
	return nil
}
