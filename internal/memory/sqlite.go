package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ouroscan/ouroscan/internal/types"
)

const schema = `
-- Memory records (append-only)
CREATE TABLE IF NOT EXISTS memories (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    pattern_key TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_pattern_key ON memories(pattern_key);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
`

// SQLiteStore implements the Store interface using SQLite. Relevance
// ranking for Recall is computed in the application layer: candidate rows
// are scored by query-term overlap with recency as the tiebreak. That is
// enough for the record volumes one engine produces; a vector backend can
// replace this store without touching callers.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultPath is where the store lives relative to the project root.
const DefaultPath = ".ouroscan/memory.db"

// NewSQLiteStore opens (creating if needed) the store at path. Use
// ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for better concurrency between an analyzing engine and readers
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Remember appends one record and returns its id.
func (s *SQLiteStore) Remember(ctx context.Context, content string, metadata map[string]string) (string, error) {
	id := uuid.New().String()

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, metadata, created_at)
		VALUES (?, ?, ?, ?)
	`, id, content, metaJSON, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert memory: %w", err)
	}

	return id, nil
}

// LearnPattern stores one row per item, all sharing the pattern key, in a
// single transaction so a cluster is never half-written.
func (s *SQLiteStore) LearnPattern(ctx context.Context, key string, items []string, metadata map[string]string) error {
	if key == "" {
		return fmt.Errorf("pattern key is required")
	}
	if len(items) == 0 {
		return nil
	}

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memories (id, content, metadata, pattern_key, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.New().String(), item, metaJSON, key, now)
		if err != nil {
			return fmt.Errorf("failed to insert pattern item: %w", err)
		}
	}

	return tx.Commit()
}

// scoredRecord pairs a record with its relevance score for sorting.
type scoredRecord struct {
	record types.MemoryRecord
	score  int
	seq    int64
}

// Recall scores every record by query-term overlap and returns the top
// results, most relevant first, recency breaking ties.
func (s *SQLiteStore) Recall(ctx context.Context, query string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	terms := queryTerms(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, content, metadata, pattern_key, created_at
		FROM memories
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var scored []scoredRecord
	for rows.Next() {
		var seq int64
		rec, err := scanRecord(rows, &seq)
		if err != nil {
			return nil, err
		}

		score := relevance(rec, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		scored = append(scored, scoredRecord{record: rec, score: score, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].seq > scored[j].seq
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	records := make([]types.MemoryRecord, len(scored))
	for i, sr := range scored {
		records[i] = sr.record
	}
	return records, nil
}

// RecallByType returns records with an exact metadata type match, newest
// first. The metadata column is canonical JSON from encodeMetadata, so the
// tag always appears as a compact `"type":"<value>"` pair.
func (s *SQLiteStore) RecallByType(ctx context.Context, recordType string, limit int) ([]types.MemoryRecord, error) {
	if limit <= 0 || recordType == "" {
		return nil, nil
	}

	pair, err := json.Marshal(map[string]string{MetaType: recordType})
	if err != nil {
		return nil, fmt.Errorf("failed to encode type filter: %w", err)
	}
	// {"type":"x"} -> "type":"x"
	needle := "%" + strings.Trim(string(pair), "{}") + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, content, metadata, pattern_key, created_at
		FROM memories
		WHERE metadata LIKE ?
		ORDER BY seq DESC
		LIMIT ?
	`, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var records []types.MemoryRecord
	for rows.Next() {
		var seq int64
		rec, err := scanRecord(rows, &seq)
		if err != nil {
			return nil, err
		}
		if rec.Metadata[MetaType] != recordType {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	return records, nil
}

// ExportAll returns every record in append order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, content, metadata, pattern_key, created_at
		FROM memories
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var records []types.MemoryRecord
	for rows.Next() {
		var seq int64
		rec, err := scanRecord(rows, &seq)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows, seq *int64) (types.MemoryRecord, error) {
	var rec types.MemoryRecord
	var metaJSON string

	if err := rows.Scan(seq, &rec.ID, &rec.Content, &metaJSON, &rec.PatternKey, &rec.CreatedAt); err != nil {
		return types.MemoryRecord{}, fmt.Errorf("failed to scan memory: %w", err)
	}

	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			// Corrupt metadata is not fatal to a read; surface the raw text
			rec.Metadata = map[string]string{"_raw": metaJSON}
		}
	}

	return rec, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// queryTerms tokenizes a query into lowercase terms of at least 3 runes.
func queryTerms(query string) []string {
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) >= 3 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// relevance counts how many query terms appear in the record's content,
// pattern key, or metadata values. An empty query matches everything with
// score 0, so Recall falls back to pure recency.
func relevance(rec types.MemoryRecord, terms []string) int {
	if len(terms) == 0 {
		return 0
	}

	var sb strings.Builder
	sb.WriteString(strings.ToLower(rec.Content))
	sb.WriteString(" ")
	sb.WriteString(strings.ToLower(rec.PatternKey))
	for k, v := range rec.Metadata {
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(k))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(v))
	}
	haystack := sb.String()

	score := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			score++
		}
	}
	return score
}
