package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ouroscan/ouroscan/internal/types"
)

// Rule priority order. Only the first matching category fires per line.
// Downstream severity statistics depend on single-label-per-line counting,
// so this stays an elif chain rather than multi-label tagging.

var (
	maintenanceRe = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b`)

	wildcardImportRe = regexp.MustCompile(`^\s*from\s+\S+\s+import\s+\*`)

	bareExceptRe = regexp.MustCompile(`^\s*except\s*:`)

	// Secret-looking variable assigned a quoted literal. The allowlist in
	// looksLikeSafeAccessor is checked first: referencing an environment,
	// config, or input accessor clears the line before this fires.
	credentialRe = regexp.MustCompile(`(?i)\b\w*(password|passwd|secret|token|api_?key|access_key|credential)\w*\s*=\s*["'][^"']+["']`)

	// Dynamic SQL building: f-strings, %-formatting, .format, or plain
	// concatenation next to a query-execution call.
	fStringRe = regexp.MustCompile(`f["']`)
)

// credentialAllowlist are safe accessor markers: a line referencing any of
// these is never flagged as a hardcoded credential. Allowlist before
// blocklist is a deliberate false-positive reducer.
var credentialAllowlist = []string{
	"os.environ",
	"os.getenv",
	"getenv(",
	"environ.get",
	"config",
	"settings",
	"input(",
	"getpass",
	"vault",
	"keyring",
}

// matchRuleChain tests line i of lines against the static rules in
// priority order and returns the first match.
func (d *Detector) matchRuleChain(path string, lines []string, i int, isTest bool) (types.Finding, bool) {
	line := lines[i]
	trimmed := strings.TrimSpace(line)

	switch {
	case maintenanceRe.MatchString(line):
		return makeFinding("maintenance_comment", types.SeverityLow, path,
			"Maintenance marker: %s", trimmed), true

	// Print statements are expected in test files, so the condition fails
	// there and the chain continues to the remaining rules.
	case strings.HasPrefix(trimmed, "print(") && !isTest:
		return makeFinding("debug_print", types.SeverityLow, path,
			"Debug print in production code: %s", trimmed), true

	case wildcardImportRe.MatchString(line):
		return makeFinding("wildcard_import", types.SeverityMedium, path,
			"Wildcard import pollutes the namespace: %s", trimmed), true

	case bareExceptRe.MatchString(line):
		return makeFinding("bare_exception", types.SeverityMedium, path,
			"Bare except swallows all errors: %s", trimmed), true

	case isHardcodedCredential(line):
		return makeFinding("hardcoded_credential", types.SeverityCritical, path,
			"Possible hardcoded credential: %s", trimmed), true

	case isInjectionRisk(line):
		return makeFinding("sql_injection_risk", types.SeverityCritical, path,
			"Query built from dynamic string: %s", trimmed), true

	case d.isUnguardedFileOp(lines, i):
		return makeFinding("unguarded_file_op", types.SeverityMedium, path,
			"File operation without nearby error handling: %s", trimmed), true
	}

	return types.Finding{}, false
}

func makeFinding(kind string, severity types.Severity, path, format string, args ...interface{}) types.Finding {
	return types.Finding{
		Kind:        kind,
		Severity:    severity,
		Description: types.TruncateDescription(fmt.Sprintf(format, args...)),
		FilePath:    path,
	}
}

// isHardcodedCredential applies the allowlist before the blocklist: lines
// that pull the value from an environment, config, or input accessor are
// safe regardless of the variable name.
func isHardcodedCredential(line string) bool {
	lowered := strings.ToLower(line)
	for _, safe := range credentialAllowlist {
		if strings.Contains(lowered, safe) {
			return false
		}
	}
	return credentialRe.MatchString(line)
}

// isInjectionRisk flags query-execution calls combined with string
// concatenation or interpolation, regardless of context.
func isInjectionRisk(line string) bool {
	lowered := strings.ToLower(line)
	hasExec := strings.Contains(lowered, "execute(") ||
		strings.Contains(lowered, "executemany(") ||
		strings.Contains(lowered, "executescript(")
	if !hasExec {
		return false
	}
	return strings.Contains(line, "+") ||
		strings.Contains(line, ".format(") ||
		strings.Contains(line, "%") ||
		fStringRe.MatchString(line)
}

// isUnguardedFileOp flags an open() call when no try block opens within the
// lookback window preceding it. A fixed-window proximity check, so both
// false positives and negatives are possible; that is the intended
// semantics.
func (d *Detector) isUnguardedFileOp(lines []string, i int) bool {
	line := lines[i]
	if !strings.Contains(line, "open(") {
		return false
	}
	// with-statements carry their own cleanup
	if strings.Contains(strings.TrimSpace(line), "with ") {
		return false
	}

	start := i - d.cfg.LookbackWindow
	if start < 0 {
		start = 0
	}
	for j := start; j <= i; j++ {
		if strings.HasPrefix(strings.TrimSpace(lines[j]), "try") {
			return false
		}
	}
	return true
}
