// Package mirror provides a local keyed store of previously fetched vector
// records.
//
// The mirror lets the pipeline avoid redundant remote fetches and supports
// offline browsing of memories. Records are persisted in a SQLite database
// (vectors and metadata stored as JSON strings in TEXT fields) behind an
// in-memory ristretto cache for hot reads.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto"
	_ "github.com/mattn/go-sqlite3"

	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

// Store implements vectorstore.Mirror with a SQLite file and a ristretto
// front cache.
type Store struct {
	db    *sql.DB
	cache *ristretto.Cache
}

// Config contains configuration for creating a mirror store.
type Config struct {
	// DBPath is the path to the SQLite database file (required).
	DBPath string

	// CacheMaxCost bounds the in-memory cache size in entries
	// (default: 4096).
	CacheMaxCost int64
}

// NewStore creates a new mirror store, creating the database file and its
// parent directory if needed.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	maxCost := cfg.CacheMaxCost
	if maxCost <= 0 {
		maxCost = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	store := &Store{db: db, cache: cache}
	if err := store.initTables(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) initTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS mirror_records (
			id TEXT PRIMARY KEY,
			embedding TEXT NOT NULL,
			metadata TEXT,
			cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// Put stores or replaces a record by id.
func (s *Store) Put(ctx context.Context, rec vectorstore.Record) error {
	embeddingJSON, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}

	query := `
		INSERT INTO mirror_records (id, embedding, metadata, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			cached_at = excluded.cached_at
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, string(embeddingJSON), string(metadataJSON), time.Now()); err != nil {
		return fmt.Errorf("Put: %w", err)
	}

	s.cache.Set(rec.ID, rec, 1)
	return nil
}

// Get returns the record for id, or found=false if the mirror has no copy.
func (s *Store) Get(ctx context.Context, id string) (*vectorstore.Record, bool, error) {
	if cached, ok := s.cache.Get(id); ok {
		if rec, ok := cached.(vectorstore.Record); ok {
			return &rec, true, nil
		}
	}

	query := `SELECT id, embedding, metadata FROM mirror_records WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		recID        string
		embeddingRaw string
		metadataRaw  sql.NullString
	)
	if err := row.Scan(&recID, &embeddingRaw, &metadataRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("Get: %w", err)
	}

	rec := vectorstore.Record{ID: recID}
	if err := json.Unmarshal([]byte(embeddingRaw), &rec.Values); err != nil {
		return nil, false, fmt.Errorf("Get: %w", err)
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &rec.Metadata); err != nil {
			return nil, false, fmt.Errorf("Get: %w", err)
		}
	}

	s.cache.Set(rec.ID, rec, 1)
	return &rec, true, nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mirror_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	s.cache.Del(id)
	return nil
}

// Clear removes every mirrored record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mirror_records`); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	s.cache.Clear()
	return nil
}

// Close closes the database and releases cache resources.
func (s *Store) Close() error {
	s.cache.Close()
	return s.db.Close()
}
