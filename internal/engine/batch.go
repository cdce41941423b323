package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ouroscan/ouroscan/internal/memory"
	"github.com/ouroscan/ouroscan/internal/types"
)

// runBatches processes files in contiguous batches of cfg.BatchSize,
// preserving selector order. A failing or panicking file is skipped with a
// warning; it never takes down its batch or the iteration. Returns the
// aggregated findings and the number of batches processed.
func (e *Engine) runBatches(ctx context.Context, iteration int, files []string, patterns []string) ([]types.Finding, int) {
	var findings []types.Finding
	processed := 0
	batches := 0

	for start := 0; start < len(files); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]
		batchIndex := batches
		batches++

		batchIssues := 0
		for _, path := range batch {
			fileFindings, err := e.analyzeOne(ctx, path, patterns)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, err)
			} else {
				findings = append(findings, fileFindings...)
				batchIssues += len(fileFindings)
			}

			processed++
			if processed%e.cfg.ProgressEvery == 0 {
				fmt.Fprintf(os.Stderr, "progress: %d/%d files\n", processed, len(files))
			}
		}

		e.recordBatchSummary(ctx, iteration, batchIndex, len(batch), batchIssues, processed, len(files))
	}

	return findings, batches
}

// analyzeOne reads and analyzes a single file. Detector panics are
// converted to errors so one pathological file cannot abort the batch.
func (e *Engine) analyzeOne(ctx context.Context, path string, patterns []string) (findings []types.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return e.det.AnalyzeFile(ctx, path, content, patterns), nil
}

// recordBatchSummary persists one batch's outcome. Best-effort.
func (e *Engine) recordBatchSummary(ctx context.Context, iteration, batchIndex, fileCount, issueCount, processed, total int) {
	progress := 0.0
	if total > 0 {
		progress = float64(processed) / float64(total)
	}

	content := fmt.Sprintf(
		"iteration %d batch %d: %d files, %d issues (%.0f%% complete)",
		iteration, batchIndex, fileCount, issueCount, progress*100,
	)

	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	_, err := e.store.Remember(ctx, content, map[string]string{
		memory.MetaType: memory.TypeBatchSummary,
		"iteration":     strconv.Itoa(iteration),
		"batch":         strconv.Itoa(batchIndex),
		"file_count":    strconv.Itoa(fileCount),
		"issue_count":   strconv.Itoa(issueCount),
		"progress":      strconv.FormatFloat(progress, 'f', 2, 64),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording batch summary: %v\n", err)
	}
}
