package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ouroscan/ouroscan/internal/types"
)

// Model selection mirrors the tiered strategy used elsewhere: a cost-efficient
// model is enough for per-file pattern review.
//
// Environment variable overrides:
// - OUROSCAN_MODEL: Override the analysis model
const (
	// ModelDefault is the cost-efficient model for per-file analysis
	ModelDefault = "claude-3-5-haiku-20241022"
)

// GetModel returns the analysis model, checking OUROSCAN_MODEL first
func GetModel() string {
	if model := os.Getenv("OUROSCAN_MODEL"); model != "" {
		return model
	}
	return ModelDefault
}

// AnthropicConfig holds configuration for the Anthropic-backed detector
type AnthropicConfig struct {
	APIKey string // if empty, reads ANTHROPIC_API_KEY

	Model string // defaults to GetModel()

	// RequestsPerSecond throttles API calls across a batch run.
	// Default: 1 request/second with a burst of 2.
	RequestsPerSecond float64

	// MaxConcurrentCalls caps in-flight API calls. Default: 2.
	MaxConcurrentCalls int

	// MaxContentBytes truncates file content sent per call. Default: 16 KiB.
	MaxContentBytes int
}

// AnthropicDetector analyzes files with Claude, rate limited so a large
// batch run cannot stampede the API.
type AnthropicDetector struct {
	client  *anthropic.Client
	model   string
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	maxLen  int
}

// NewAnthropicDetector creates the detector. Returns an error when no API
// key is available; callers fall back to Noop.
func NewAnthropicDetector(cfg *AnthropicConfig) (*AnthropicDetector, error) {
	if cfg == nil {
		cfg = &AnthropicConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetModel()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	maxLen := cfg.MaxContentBytes
	if maxLen <= 0 {
		maxLen = 16 * 1024
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicDetector{
		client:  &client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		maxLen:  maxLen,
	}, nil
}

// Name implements Detector.
func (d *AnthropicDetector) Name() string { return "anthropic" }

// analysisResponse is the JSON shape expected back from the model.
type analysisResponse struct {
	Findings []Finding `json:"findings"`
}

// AnalyzeFile implements Detector.
func (d *AnthropicDetector) AnalyzeFile(ctx context.Context, path string, content string) ([]Finding, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring call slot: %w", err)
	}
	defer d.sem.Release(1)

	if len(content) > d.maxLen {
		content = content[:d.maxLen]
	}

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := d.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(d.buildPrompt(path, content))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	parsed, err := parseFindings(responseText)
	if err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}

	// Normalize: findings always name the file they came from, and carry
	// the model's severity as original_severity.
	for i := range parsed {
		if parsed[i].FilePath == "" {
			parsed[i].FilePath = path
		}
		if parsed[i].OriginalSeverity == "" {
			parsed[i].OriginalSeverity = parsed[i].Severity
		}
		if !parsed[i].Severity.IsValid() {
			parsed[i].Severity = types.SeverityMedium
		}
	}

	return parsed, nil
}

func (d *AnthropicDetector) buildPrompt(path string, content string) string {
	var sb strings.Builder

	sb.WriteString("# Code Pattern Review Request\n\n")
	sb.WriteString(fmt.Sprintf("Review the following file for defect patterns: `%s`\n\n", path))

	sb.WriteString("Look for:\n")
	sb.WriteString("- Hardcoded credentials or secrets\n")
	sb.WriteString("- SQL built by string concatenation or interpolation\n")
	sb.WriteString("- Unhandled error paths around I/O\n")
	sb.WriteString("- Debug output left in production code\n")
	sb.WriteString("- Overly broad exception handling\n\n")

	sb.WriteString("## File Content\n")
	sb.WriteString("```\n")
	sb.WriteString(content)
	sb.WriteString("\n```\n\n")

	sb.WriteString("## Response Format\n")
	sb.WriteString("Return valid JSON:\n")
	sb.WriteString("```json\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"findings\": [\n")
	sb.WriteString("    {\n")
	sb.WriteString("      \"category\": \"sql_injection_risk\",\n")
	sb.WriteString("      \"line\": 42,\n")
	sb.WriteString("      \"severity\": \"critical\",\n")
	sb.WriteString("      \"message\": \"Query built with string interpolation\",\n")
	sb.WriteString("      \"context\": \"cursor.execute(f\\\"...\\\")\",\n")
	sb.WriteString("      \"suggestion\": \"Use parameterized queries\",\n")
	sb.WriteString("      \"confidence\": 0.9\n")
	sb.WriteString("    }\n")
	sb.WriteString("  ]\n")
	sb.WriteString("}\n")
	sb.WriteString("```\n")
	sb.WriteString("Severity must be one of: low, medium, high, critical.\n")
	sb.WriteString("Return {\"findings\": []} if the file is clean.\n")

	return sb.String()
}

// parseFindings parses the model's JSON response, stripping markdown code
// fences when present and falling back to extracting the outermost JSON
// object from mixed content.
func parseFindings(response string) ([]Finding, error) {
	candidates := []string{response, stripCodeFences(response)}

	if start := strings.Index(response, "{"); start >= 0 {
		if end := strings.LastIndex(response, "}"); end > start {
			candidates = append(candidates, response[start:end+1])
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed analysisResponse
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			lastErr = err
			continue
		}
		return parsed.Findings, nil
	}

	truncated := response
	if len(truncated) > 500 {
		truncated = truncated[:500] + "... (truncated)"
	}
	return nil, fmt.Errorf("no parse strategy succeeded: %v (response: %s)", lastErr, truncated)
}

// stripCodeFences removes markdown ``` fences around a JSON payload.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
