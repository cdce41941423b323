// Package memory provides the persistent knowledge store the engine writes
// findings and summaries into, and recalls history from. The store is
// append-only: records are never edited or deleted after write.
package memory

import (
	"context"

	"github.com/ouroscan/ouroscan/internal/types"
)

// Well-known metadata keys. Remember callers tag records with a "type" so
// later aggregation can group them without interpreting content.
const (
	MetaType = "type"

	TypeIterationSummary = "iteration_summary"
	TypeBatchSummary     = "batch_summary"
	TypeCodeIssuePattern = "code_issue_pattern"
	TypeError            = "error"
)

// Store defines the memory capability consumed by the engine. Callers must
// treat every method as best-effort: a failing store degrades analysis, it
// never aborts it.
type Store interface {
	// Remember appends one record and returns its id.
	Remember(ctx context.Context, content string, metadata map[string]string) (string, error)

	// Recall returns records relevant to the query, most relevant and most
	// recent first, bounded by limit. Ranking semantics are the store's
	// own; callers treat the ordering as opaque.
	Recall(ctx context.Context, query string, limit int) ([]types.MemoryRecord, error)

	// RecallByType returns records whose metadata type tag equals
	// recordType, newest first, bounded by limit. Unlike Recall, the
	// filter is exact, so high-volume record types cannot crowd out the
	// requested one.
	RecallByType(ctx context.Context, recordType string, limit int) ([]types.MemoryRecord, error)

	// LearnPattern stores a named cluster of items under one pattern key
	// for later recall-by-similarity.
	LearnPattern(ctx context.Context, key string, items []string, metadata map[string]string) error

	// ExportAll returns every record in append order.
	ExportAll(ctx context.Context) ([]types.MemoryRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
