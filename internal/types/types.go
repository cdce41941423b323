package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies how urgent a finding is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns an integer rank for ordering (low=1, critical=4)
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity parses a severity string case-insensitively
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "low":
		return SeverityLow, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("invalid severity: %s", s)
}

// MaxDescriptionLen bounds finding descriptions so that memory records and
// terminal output stay readable. Longer descriptions are truncated with an
// ellipsis marker.
const MaxDescriptionLen = 200

// Finding represents one detected candidate defect in one file at one line.
// Severity is assigned at detection time and never mutated afterward;
// adjustments are expressed by emitting a new Finding.
type Finding struct {
	Kind        string   `json:"kind"`
	Line        int      `json:"line"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	FilePath    string   `json:"file_path"`

	// FromMemory marks findings surfaced by a recalled pattern rather than
	// a static rule.
	FromMemory bool `json:"learned_from_memory,omitempty"`

	// Enhanced-detector provenance. Zero values for base-rule findings.
	Enhanced         bool     `json:"enhanced,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
	OriginalSeverity Severity `json:"original_severity,omitempty"`
	Suggestion       string   `json:"suggestion,omitempty"`
}

// Validate checks if the finding has valid field values
func (f *Finding) Validate() error {
	if f.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if f.Line < 1 {
		return fmt.Errorf("line must be 1-based (got %d)", f.Line)
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	if f.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	return nil
}

// TruncateDescription bounds a description to MaxDescriptionLen.
func TruncateDescription(desc string) string {
	if len(desc) <= MaxDescriptionLen {
		return desc
	}
	return desc[:MaxDescriptionLen-3] + "..."
}

// MemoryRecord is one immutable entry in the persistent store. Records are
// append-only: nothing is edited or deleted after write.
type MemoryRecord struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PatternKey string            `json:"pattern_key,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CognitiveMetrics are running counters describing engine activity across
// its lifetime. All fields are monotonically non-decreasing; they reset only
// when a new engine instance is created.
type CognitiveMetrics struct {
	FilesProcessed    int `json:"files_processed"`
	ImprovementsFound int `json:"improvements_found"`
	PatternsLearned   int `json:"patterns_learned"`
	EnhancedFindings  int `json:"enhanced_findings"`
	RecursiveDepth    int `json:"recursive_depth"`
}

// IterationResult is the payload returned from one full analysis pass.
type IterationResult struct {
	Iteration     int       `json:"iteration"`
	Findings      []Finding `json:"findings"`
	FilesAnalyzed int       `json:"files_analyzed"`
	Batches       int       `json:"batches"`

	// HistoricalMeanImprovements is the mean improvements_found across prior
	// iteration summaries recalled from the store. Recorded for context; not
	// yet fed back into severity scoring (extension point for recalibration).
	HistoricalMeanImprovements float64 `json:"historical_mean_improvements"`

	// Metrics is a snapshot of the engine's counters at completion.
	Metrics CognitiveMetrics `json:"metrics"`

	Duration time.Duration `json:"duration"`
}

// SeverityCounts tallies findings by severity for a result set.
func SeverityCounts(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// KindCounts tallies findings by kind for a result set.
func KindCounts(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Kind]++
	}
	return counts
}
