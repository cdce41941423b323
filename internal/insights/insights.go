// Package insights builds read-only aggregate views over the memory store.
// It only consumes ExportAll; nothing here writes, so generating a report
// can never perturb the analysis history it describes.
package insights

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ouroscan/ouroscan/internal/memory"
	"github.com/ouroscan/ouroscan/internal/types"
)

// Config bounds each report section. Reports stay small by construction:
// the store grows without bound, the report does not.
type Config struct {
	MaxPatterns   int
	MaxIterations int
	MaxErrors     int
	MaxBatches    int
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxPatterns:   10,
		MaxIterations: 10,
		MaxErrors:     5,
		MaxBatches:    5,
	}
}

// Report summarizes accumulated analysis history.
type Report struct {
	GeneratedAt  time.Time
	TotalRecords int

	// RecentPatterns are the most recently learned finding descriptions
	RecentPatterns []PatternInsight

	// ImprovementHistory lists recent iterations, newest first
	ImprovementHistory []IterationInsight

	// RecentErrors lists recorded failures, newest first
	RecentErrors []ErrorInsight

	// RecentBatches lists recent per-batch outcomes, newest first
	RecentBatches []BatchInsight
}

type PatternInsight struct {
	PatternKey string
	Content    string
	CreatedAt  time.Time
}

type IterationInsight struct {
	Iteration         int
	FilesAnalyzed     int
	Batches           int
	ImprovementsFound int
	HistoricalMean    float64
	CreatedAt         time.Time
}

type ErrorInsight struct {
	Operation string
	Content   string
	CreatedAt time.Time
}

type BatchInsight struct {
	Iteration  int
	Batch      int
	FileCount  int
	IssueCount int
	Progress   float64
	CreatedAt  time.Time
}

// MeanImprovements averages improvement counts across the report's
// iteration history.
func (r *Report) MeanImprovements() float64 {
	if len(r.ImprovementHistory) == 0 {
		return 0
	}
	sum := 0
	for _, it := range r.ImprovementHistory {
		sum += it.ImprovementsFound
	}
	return float64(sum) / float64(len(r.ImprovementHistory))
}

// Build assembles a report from the store's full export. The export is in
// append order, so each section is filled back-to-front to surface the most
// recent entries first.
func Build(ctx context.Context, store memory.Store, cfg Config) (*Report, error) {
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = DefaultConfig().MaxPatterns
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultConfig().MaxErrors
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultConfig().MaxBatches
	}

	records, err := store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting memory records: %w", err)
	}

	report := &Report{
		GeneratedAt:  time.Now(),
		TotalRecords: len(records),
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		switch rec.Metadata[memory.MetaType] {
		case memory.TypeIterationSummary:
			if len(report.ImprovementHistory) < cfg.MaxIterations {
				report.ImprovementHistory = append(report.ImprovementHistory, iterationInsight(rec))
			}
		case memory.TypeBatchSummary:
			if len(report.RecentBatches) < cfg.MaxBatches {
				report.RecentBatches = append(report.RecentBatches, batchInsight(rec))
			}
		case memory.TypeError:
			if len(report.RecentErrors) < cfg.MaxErrors {
				report.RecentErrors = append(report.RecentErrors, ErrorInsight{
					Operation: rec.Metadata["operation"],
					Content:   rec.Content,
					CreatedAt: rec.CreatedAt,
				})
			}
		case memory.TypeCodeIssuePattern:
			if len(report.RecentPatterns) < cfg.MaxPatterns {
				report.RecentPatterns = append(report.RecentPatterns, PatternInsight{
					PatternKey: rec.PatternKey,
					Content:    rec.Content,
					CreatedAt:  rec.CreatedAt,
				})
			}
		}
	}

	return report, nil
}

func iterationInsight(rec types.MemoryRecord) IterationInsight {
	mean, _ := strconv.ParseFloat(rec.Metadata["historical_mean"], 64)
	return IterationInsight{
		Iteration:         metaInt(rec, "iteration"),
		FilesAnalyzed:     metaInt(rec, "files_analyzed"),
		Batches:           metaInt(rec, "batches"),
		ImprovementsFound: metaInt(rec, "improvements_found"),
		HistoricalMean:    mean,
		CreatedAt:         rec.CreatedAt,
	}
}

func batchInsight(rec types.MemoryRecord) BatchInsight {
	progress, _ := strconv.ParseFloat(rec.Metadata["progress"], 64)
	return BatchInsight{
		Iteration:  metaInt(rec, "iteration"),
		Batch:      metaInt(rec, "batch"),
		FileCount:  metaInt(rec, "file_count"),
		IssueCount: metaInt(rec, "issue_count"),
		Progress:   progress,
		CreatedAt:  rec.CreatedAt,
	}
}

func metaInt(rec types.MemoryRecord, key string) int {
	n, _ := strconv.Atoi(rec.Metadata[key])
	return n
}
