// Package detector applies heuristic defect rules to file text. Rules are
// line-oriented and evaluated in priority order: the first matching rule
// category wins per line. Memory-pattern matching runs independently of the
// rule chain and can co-occur on the same line.
package detector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ouroscan/ouroscan/internal/enhance"
	"github.com/ouroscan/ouroscan/internal/types"
)

// Config controls detection behavior
type Config struct {
	// LookbackWindow is how many preceding lines are searched for a try
	// block before an unguarded file operation is flagged. This is a
	// proximity heuristic, not control-flow analysis.
	LookbackWindow int

	// MinPatternLength filters recalled patterns too short to be
	// meaningful substrings.
	MinPatternLength int

	// MaxPatterns bounds how many recalled patterns are matched per line.
	// Matching is O(lines x patterns); the cap is the performance ceiling.
	MaxPatterns int
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		LookbackWindow:   5,
		MinPatternLength: 10,
		MaxPatterns:      20,
	}
}

// Detector analyzes file content for defect patterns. It never fails on
// malformed content: undecodable files are skipped with a logged warning.
type Detector struct {
	cfg      Config
	enhanced enhance.Detector
}

// New creates a detector. Pass enhance.Noop{} when no secondary detector
// is configured.
func New(cfg Config, enhanced enhance.Detector) *Detector {
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = DefaultConfig().LookbackWindow
	}
	if cfg.MinPatternLength <= 0 {
		cfg.MinPatternLength = DefaultConfig().MinPatternLength
	}
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = DefaultConfig().MaxPatterns
	}
	if enhanced == nil {
		enhanced = enhance.Noop{}
	}
	return &Detector{cfg: cfg, enhanced: enhanced}
}

// AnalyzeFile runs the rule chain over one file and returns its findings.
// The patterns argument carries previously recalled memory contents; pass
// nil when the store had nothing relevant.
func (d *Detector) AnalyzeFile(ctx context.Context, path string, content []byte, patterns []string) []types.Finding {
	text, ok := decode(content)
	if !ok {
		fmt.Fprintf(os.Stderr, "warning: skipping %s: undecodable content\n", path)
		return nil
	}

	isTest := IsTestFile(path)
	matchPatterns := preparePatterns(patterns, d.cfg.MinPatternLength, d.cfg.MaxPatterns)

	lines := strings.Split(text, "\n")
	var findings []types.Finding

	for i, line := range lines {
		lineNo := i + 1

		if f, matched := d.matchRuleChain(path, lines, i, isTest); matched {
			f.Line = lineNo
			findings = append(findings, f)
		}

		// Memory-pattern match is independent of the rule chain and can
		// co-occur with a static finding on the same line.
		if f, matched := matchMemoryPatterns(path, line, matchPatterns); matched {
			f.Line = lineNo
			findings = append(findings, f)
		}
	}

	findings = append(findings, d.runEnhanced(ctx, path, text)...)

	return findings
}

// runEnhanced invokes the secondary detector and maps its findings. A
// failing detector is logged and ignored; base findings still stand.
func (d *Detector) runEnhanced(ctx context.Context, path string, text string) []types.Finding {
	enhancedFindings, err := d.enhanced.AnalyzeFile(ctx, path, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: enhanced detector %s failed on %s: %v\n",
			d.enhanced.Name(), path, err)
		return nil
	}

	var findings []types.Finding
	for _, ef := range enhancedFindings {
		line := ef.Line
		if line < 1 {
			line = 1
		}
		sev := ef.Severity
		if !sev.IsValid() {
			sev = types.SeverityMedium
		}
		findings = append(findings, types.Finding{
			Kind:             ef.Category,
			Line:             line,
			Severity:         sev,
			Description:      types.TruncateDescription(ef.Message),
			FilePath:         path,
			Enhanced:         true,
			Confidence:       ef.Confidence,
			OriginalSeverity: ef.OriginalSeverity,
			Suggestion:       ef.Suggestion,
		})
	}
	return findings
}

// decode attempts a fixed ordered list of encodings: UTF-8 first, then a
// permissive Latin-1 fallback. Content with NUL bytes is treated as binary
// and rejected.
func decode(content []byte) (string, bool) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", false
	}
	if utf8.Valid(content) {
		return string(content), true
	}
	// Latin-1: every byte maps to the code point of the same value
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes), true
}

// IsTestFile classifies a path as a test file by filename prefix, suffix,
// or a test directory segment.
func IsTestFile(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	base := normalized
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		base = normalized[idx+1:]
	}

	if strings.HasPrefix(base, "test_") {
		return true
	}
	if strings.HasSuffix(base, "_test.py") {
		return true
	}
	for _, segment := range []string{"/tests/", "/test/"} {
		if strings.Contains(normalized, segment) {
			return true
		}
	}
	return false
}

// preparePatterns lowercases recalled patterns, drops those below the
// minimum length, and caps the working set.
func preparePatterns(patterns []string, minLen, maxPatterns int) []string {
	var prepared []string
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if len(p) < minLen {
			continue
		}
		prepared = append(prepared, p)
		if len(prepared) >= maxPatterns {
			break
		}
	}
	return prepared
}

// matchMemoryPatterns checks a line against recalled patterns, stopping at
// the first match.
func matchMemoryPatterns(path, line string, patterns []string) (types.Finding, bool) {
	if len(patterns) == 0 {
		return types.Finding{}, false
	}
	lowered := strings.ToLower(line)
	for _, p := range patterns {
		if strings.Contains(lowered, p) {
			return types.Finding{
				Kind:        "memory_pattern",
				Severity:    types.SeverityMedium,
				Description: types.TruncateDescription(fmt.Sprintf("Matches previously learned pattern: %s", p)),
				FilePath:    path,
				FromMemory:  true,
			}, true
		}
	}
	return types.Finding{}, false
}
