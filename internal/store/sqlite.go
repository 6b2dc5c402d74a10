package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists chunks in a single-file SQLite database so the
// in-memory indexes can be rebuilt at startup. Vectors are stored as
// little-endian float32 blobs, metadata as JSON.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL,
	text         TEXT NOT NULL,
	vector       BLOB,
	start_offset REAL NOT NULL,
	end_offset   REAL NOT NULL,
	unit         TEXT NOT NULL,
	metadata     TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);
`

// NewSQLiteStore opens (creating if needed) the chunk database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; WAL lets readers proceed during saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveChunks upserts a batch of chunks in one transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, text, vector, start_offset, end_offset, unit, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id=excluded.source_id, text=excluded.text, vector=excluded.vector,
			start_offset=excluded.start_offset, end_offset=excluded.end_offset,
			unit=excluded.unit, metadata=excluded.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		var metaJSON []byte
		if len(chunk.Metadata) > 0 {
			metaJSON, err = json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for chunk %s: %w", chunk.ID, err)
			}
		}
		_, err = stmt.ExecContext(ctx,
			chunk.ID, chunk.SourceID, chunk.Text, encodeVector(chunk.Vector),
			chunk.StartOffset, chunk.EndOffset, string(chunk.Unit), metaJSON)
		if err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

// LoadAll reads every persisted chunk, ordered by id for determinism.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, text, vector, start_offset, end_offset, unit, metadata
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			chunk    Chunk
			unit     string
			vecBlob  []byte
			metaJSON []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.SourceID, &chunk.Text, &vecBlob,
			&chunk.StartOffset, &chunk.EndOffset, &unit, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Unit = Unit(unit)
		chunk.Vector = decodeVector(vecBlob)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", chunk.ID, err)
			}
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// DeleteSource removes all persisted chunks for a source.
func (s *SQLiteStore) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %s: %w", sourceID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*SQLiteStore)(nil)

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
