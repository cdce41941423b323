// Package engine drives the recursive improvement loop: one iteration walks
// a project's files in fixed-size batches, applies the issue detector,
// consults and updates the memory store, and accumulates session-over-session
// metrics. Batch- and file-level failures are recovered locally; only root
// validation and truly unexpected errors propagate to the caller.
package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ouroscan/ouroscan/internal/detector"
	"github.com/ouroscan/ouroscan/internal/enhance"
	"github.com/ouroscan/ouroscan/internal/memory"
	"github.com/ouroscan/ouroscan/internal/selector"
	"github.com/ouroscan/ouroscan/internal/types"
)

// Config controls iteration behavior
type Config struct {
	// BatchSize is how many files are processed per batch (default 50)
	BatchSize int

	// MaxDepth is the recursive analysis depth recorded with each
	// iteration (default 3)
	MaxDepth int

	// ProgressEvery is the file-count cadence for progress output.
	// Advisory only; not part of the correctness contract.
	ProgressEvery int

	// HistoryLimit bounds how many prior iteration summaries are
	// recalled for historical context (default 10)
	HistoryLimit int

	// RecallLimit bounds how many patterns are recalled for per-line
	// matching (default 20). Matching cost is O(lines x patterns), so
	// this cap is a deliberate performance ceiling.
	RecallLimit int

	Selector selector.Config
	Detector detector.Config
}

// storeCallTimeout bounds each memory-store call so a hung store degrades
// the same way a failing one does.
const storeCallTimeout = 5 * time.Second

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		MaxDepth:      3,
		ProgressEvery: 10,
		HistoryLimit:  10,
		RecallLimit:   20,
		Selector:      selector.DefaultConfig(),
		Detector:      detector.DefaultConfig(),
	}
}

// Engine runs analysis iterations against a shared memory store. One engine
// instance owns its counters and the working findings of the iteration in
// flight; the store is external and append-only, so the engine only ever
// writes to and reads from it.
type Engine struct {
	store memory.Store
	det   *detector.Detector
	cfg   Config

	mu        sync.Mutex
	iteration int
	metrics   types.CognitiveMetrics
}

// New creates an engine bound to a memory store. Pass enhance.Noop{} (or
// nil) when no enhanced detector is configured.
func New(store memory.Store, enhanced enhance.Detector, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = DefaultConfig().RecallLimit
	}
	if enhanced == nil {
		enhanced = enhance.Noop{}
	}

	return &Engine{
		store: store,
		det:   detector.New(cfg.Detector, enhanced),
		cfg:   cfg,
	}, nil
}

// Metrics returns a snapshot of the engine's running counters.
func (e *Engine) Metrics() types.CognitiveMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// RunIteration performs one full pass over the project at root. Root
// validation errors surface immediately with no partial work; any other
// unexpected failure is recorded as an error memory record and re-raised.
func (e *Engine) RunIteration(ctx context.Context, root string) (*types.IterationResult, error) {
	sel, err := selector.New(root, e.cfg.Selector)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.iteration++
	iteration := e.iteration
	e.mu.Unlock()

	start := time.Now()

	result, err := e.runIteration(ctx, iteration, sel)
	if err != nil {
		e.recordError(ctx, iteration, "run_iteration", err)
		return nil, fmt.Errorf("iteration %d failed: %w", iteration, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) runIteration(ctx context.Context, iteration int, sel *selector.Selector) (*types.IterationResult, error) {
	// Historical context from prior iterations. Recorded with the result
	// but not yet fed back into severity scoring; automatic recalibration
	// is an explicit extension point, not guessed at here.
	historicalMean := e.historicalMeanImprovements(ctx)

	patterns := e.recallPatterns(ctx)

	files, err := sel.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting files: %w", err)
	}

	findings, batches := e.runBatches(ctx, iteration, files, patterns)

	enhancedCount := 0
	for _, f := range findings {
		if f.Enhanced {
			enhancedCount++
		}
	}

	// One learned pattern per non-empty iteration, not one per batch
	patternsLearned := 0
	if len(findings) > 0 {
		patternsLearned = 1
		e.learnFindings(ctx, iteration, findings)
	}

	e.mu.Lock()
	e.metrics.FilesProcessed += len(files)
	e.metrics.ImprovementsFound += len(findings)
	e.metrics.PatternsLearned += patternsLearned
	e.metrics.EnhancedFindings += enhancedCount
	if e.cfg.MaxDepth > e.metrics.RecursiveDepth {
		e.metrics.RecursiveDepth = e.cfg.MaxDepth
	}
	snapshot := e.metrics
	e.mu.Unlock()

	result := &types.IterationResult{
		Iteration:                  iteration,
		Findings:                   findings,
		FilesAnalyzed:              len(files),
		Batches:                    batches,
		HistoricalMeanImprovements: historicalMean,
		Metrics:                    snapshot,
	}

	e.recordIterationSummary(ctx, result)

	return result, nil
}

// historicalMeanImprovements recalls prior iteration summaries and averages
// their improvement counts. The recall is typed: batch summaries outnumber
// iteration summaries many-to-one and must not consume the recall limit.
// Best-effort: a failing store yields zero.
func (e *Engine) historicalMeanImprovements(ctx context.Context) float64 {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	records, err := e.store.RecallByType(ctx, memory.TypeIterationSummary, e.cfg.HistoryLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: recalling iteration history: %v\n", err)
		return 0
	}

	sum, count := 0, 0
	for _, rec := range records {
		n, err := strconv.Atoi(rec.Metadata["improvements_found"])
		if err != nil {
			continue
		}
		sum += n
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// recallPatterns fetches previously learned finding descriptions for
// per-line matching, typed like the history recall so summary records never
// occupy pattern slots. Best-effort: a failing store degrades to no
// patterns.
func (e *Engine) recallPatterns(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	records, err := e.store.RecallByType(ctx, memory.TypeCodeIssuePattern, e.cfg.RecallLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: recalling patterns: %v\n", err)
		return nil
	}

	patterns := make([]string, 0, len(records))
	for _, rec := range records {
		patterns = append(patterns, rec.Content)
	}
	return patterns
}

// learnFindings submits the iteration's finding descriptions as one
// learned pattern. Best-effort; a dropped write is logged, never fatal.
func (e *Engine) learnFindings(ctx context.Context, iteration int, findings []types.Finding) {
	items := make([]string, len(findings))
	for i, f := range findings {
		items[i] = f.Description
	}

	fileType := ""
	if len(e.cfg.Selector.Extensions) > 0 {
		fileType = e.cfg.Selector.Extensions[0]
	}

	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	key := fmt.Sprintf("iteration_%d_improvements", iteration)
	err := e.store.LearnPattern(ctx, key, items, map[string]string{
		memory.MetaType: memory.TypeCodeIssuePattern,
		"file_type":     fileType,
		"iteration":     strconv.Itoa(iteration),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: learning pattern %s: %v\n", key, err)
	}
}

// recordIterationSummary persists the terminal record for one iteration.
// Best-effort; the result is already complete when this runs.
func (e *Engine) recordIterationSummary(ctx context.Context, result *types.IterationResult) {
	var kindParts []string
	for kind, n := range types.KindCounts(result.Findings) {
		kindParts = append(kindParts, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(kindParts)

	content := fmt.Sprintf(
		"iteration %d summary: %d files, %d batches, %d improvements found (%s)",
		result.Iteration, result.FilesAnalyzed, result.Batches,
		len(result.Findings), strings.Join(kindParts, ", "),
	)

	metadata := map[string]string{
		memory.MetaType:      memory.TypeIterationSummary,
		"iteration":          strconv.Itoa(result.Iteration),
		"files_analyzed":     strconv.Itoa(result.FilesAnalyzed),
		"batches":            strconv.Itoa(result.Batches),
		"improvements_found": strconv.Itoa(len(result.Findings)),
		"batch_size":         strconv.Itoa(e.cfg.BatchSize),
		"max_depth":          strconv.Itoa(e.cfg.MaxDepth),
		"historical_mean":    strconv.FormatFloat(result.HistoricalMeanImprovements, 'f', 2, 64),
	}
	for sev, n := range types.SeverityCounts(result.Findings) {
		metadata["severity_"+string(sev)] = strconv.Itoa(n)
	}

	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if _, err := e.store.Remember(ctx, content, metadata); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording iteration summary: %v\n", err)
	}
}

// recordError persists a failure record before the error is re-raised.
// Best-effort by necessity: the store may be the thing that failed.
func (e *Engine) recordError(ctx context.Context, iteration int, operation string, cause error) {
	// Detached from the caller's context: a cancellation that caused the
	// failure must not also swallow the record of it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
	defer cancel()

	content := fmt.Sprintf("iteration %d error in %s: %v", iteration, operation, cause)
	_, err := e.store.Remember(ctx, content, map[string]string{
		memory.MetaType: memory.TypeError,
		"iteration":     strconv.Itoa(iteration),
		"operation":     operation,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording error event: %v\n", err)
	}
}
