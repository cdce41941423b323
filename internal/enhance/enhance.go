// Package enhance provides the optional secondary detector capability.
// The engine is constructed with a Detector; when no real implementation is
// available it runs with Noop and base rules only.
package enhance

import (
	"context"
	"os"

	"github.com/ouroscan/ouroscan/internal/types"
)

// Finding is one issue reported by an enhanced detector. It carries richer
// provenance than a base-rule finding: the detector's confidence and the
// severity it originally assigned before any downstream mapping.
type Finding struct {
	Category         string         `json:"category"`
	Line             int            `json:"line"`
	Severity         types.Severity `json:"severity"`
	Message          string         `json:"message"`
	Context          string         `json:"context,omitempty"`
	Suggestion       string         `json:"suggestion,omitempty"`
	Confidence       float64        `json:"confidence"`
	OriginalSeverity types.Severity `json:"original_severity,omitempty"`
	FilePath         string         `json:"file_path,omitempty"`
}

// Detector is the injectable secondary analysis capability.
type Detector interface {
	// Name returns the unique identifier for this detector.
	Name() string

	// AnalyzeFile examines one file and returns discovered findings.
	// A failing detector must not fail the pipeline; callers log and
	// continue with base-rule findings only.
	AnalyzeFile(ctx context.Context, path string, content string) ([]Finding, error)
}

// Noop is the null detector used when no enhanced analysis is configured.
type Noop struct{}

// Name implements Detector.
func (Noop) Name() string { return "noop" }

// AnalyzeFile implements Detector. It never finds anything.
func (Noop) AnalyzeFile(ctx context.Context, path string, content string) ([]Finding, error) {
	return nil, nil
}

// FromEnv selects a detector based on the environment: the Anthropic-backed
// detector when ANTHROPIC_API_KEY is set, Noop otherwise. Absence of the
// key degrades gracefully rather than failing.
func FromEnv() Detector {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return Noop{}
	}
	det, err := NewAnthropicDetector(&AnthropicConfig{})
	if err != nil {
		return Noop{}
	}
	return det
}
