// Package sqlite persists chunk vectors in a local SQLite file so the
// index survives restarts without an external service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"siterag/internal/domain"
	"siterag/internal/embedding"
)

const deleteBatch = 500

// Storage keeps vectors as JSON next to their metadata and scans them
// brute-force on Query.
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Storage, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			source_url TEXT NOT NULL,
			depth INTEGER NOT NULL,
			embedding TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_url)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *Storage) Close() error { return s.db.Close() }

// Add upserts all records in one transaction. Existing rows keep their
// position so score ties stay in insertion order.
func (s *Storage) Add(ctx context.Context, ids []string, vectors [][]float64, metas []domain.ChunkMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return errors.New("ids, vectors and metadata length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, text, source_url, depth, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			source_url = excluded.source_url,
			depth = excluded.depth,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		m := metas[i]
		if _, err := stmt.ExecContext(ctx, id, m.Text, m.SourceURL, m.Depth, string(embJSON)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, vector []float64, n int) ([]domain.Hit, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, source_url, depth, embedding FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var (
			h       domain.Hit
			embJSON string
			vec     []float64
		)
		if err := rows.Scan(&h.ID, &h.Metadata.Text, &h.Metadata.SourceURL, &h.Metadata.Depth, &embJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", h.ID, err)
		}
		h.Score = embedding.Dot(vec, vector)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if n < len(hits) {
		hits = hits[:n]
	}
	return hits, nil
}

func (s *Storage) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes ids in batches inside one transaction so large corpora stay
// under SQLite's bound-variable limit.
func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(ids); start += deleteBatch {
		batch := ids[start:min(start+deleteBatch, len(ids))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
	}
	return tx.Commit()
}
