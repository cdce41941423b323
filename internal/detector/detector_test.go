package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouroscan/ouroscan/internal/enhance"
	"github.com/ouroscan/ouroscan/internal/types"
)

func analyze(t *testing.T, path, content string, patterns []string) []types.Finding {
	t.Helper()
	d := New(DefaultConfig(), enhance.Noop{})
	return d.AnalyzeFile(context.Background(), path, []byte(content), patterns)
}

func kinds(findings []types.Finding) []string {
	var out []string
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func TestMaintenanceComment(t *testing.T) {
	findings := analyze(t, "app.py", "x = 1\n# TODO: clean this up\n", nil)

	require.Len(t, findings, 1)
	assert.Equal(t, "maintenance_comment", findings[0].Kind)
	assert.Equal(t, 2, findings[0].Line)
	assert.Equal(t, types.SeverityLow, findings[0].Severity)
	assert.False(t, findings[0].FromMemory)
}

func TestDebugPrint_ContextSensitivity(t *testing.T) {
	line := "print(\"debug\")\n"

	prod := analyze(t, "foo.py", line, nil)
	require.Len(t, prod, 1)
	assert.Equal(t, "debug_print", prod[0].Kind)
	assert.Equal(t, 1, prod[0].Line)
	assert.Equal(t, types.SeverityLow, prod[0].Severity)

	for _, testPath := range []string{
		"test_foo.py",
		"foo_test.py",
		"tests/helpers.py",
		"pkg/test/check.py",
	} {
		t.Run(testPath, func(t *testing.T) {
			findings := analyze(t, testPath, line, nil)
			assert.Empty(t, findings)
		})
	}
}

func TestWildcardImport(t *testing.T) {
	findings := analyze(t, "app.py", "from os.path import *\n", nil)

	require.Len(t, findings, 1)
	assert.Equal(t, "wildcard_import", findings[0].Kind)
	assert.Equal(t, types.SeverityMedium, findings[0].Severity)
}

func TestBareExcept(t *testing.T) {
	content := "try:\n    risky()\nexcept:\n    pass\n"
	findings := analyze(t, "app.py", content, nil)

	require.Len(t, findings, 1)
	assert.Equal(t, "bare_exception", findings[0].Kind)
	assert.Equal(t, 3, findings[0].Line)
}

func TestCredential_AllowlistPrecedence(t *testing.T) {
	// Safe accessor clears the line even with a secret-looking name
	safe := analyze(t, "app.py", "token = os.environ[\"X\"]\n", nil)
	assert.Empty(t, safe)

	flagged := analyze(t, "app.py", "token = \"abc123\"\n", nil)
	require.Len(t, flagged, 1)
	assert.Equal(t, "hardcoded_credential", flagged[0].Kind)
	assert.Equal(t, types.SeverityCritical, flagged[0].Severity)
}

func TestCredential_Allowlist(t *testing.T) {
	safeLines := []string{
		"api_key = os.getenv(\"API_KEY\", \"\")",
		"password = config[\"db_password\"]",
		"secret = input(\"enter secret: \")",
		"token = settings.AUTH_TOKEN",
	}
	for _, line := range safeLines {
		t.Run(line, func(t *testing.T) {
			assert.Empty(t, analyze(t, "app.py", line+"\n", nil))
		})
	}

	flaggedLines := []string{
		"password = \"hunter2\"",
		"API_KEY = 'sk-123456'",
		"db_credential = \"admin:admin\"",
	}
	for _, line := range flaggedLines {
		t.Run(line, func(t *testing.T) {
			findings := analyze(t, "app.py", line+"\n", nil)
			require.Len(t, findings, 1)
			assert.Equal(t, "hardcoded_credential", findings[0].Kind)
		})
	}
}

func TestInjectionRisk(t *testing.T) {
	flagged := []string{
		"cursor.execute(\"SELECT * FROM users WHERE id = \" + user_id)",
		"cursor.execute(f\"SELECT * FROM users WHERE id = {user_id}\")",
		"db.execute(\"DELETE FROM t WHERE id = %s\" % uid)",
		"conn.executemany(query.format(table))",
	}
	for _, line := range flagged {
		t.Run(line, func(t *testing.T) {
			findings := analyze(t, "app.py", line+"\n", nil)
			require.Len(t, findings, 1)
			assert.Equal(t, "sql_injection_risk", findings[0].Kind)
			assert.Equal(t, types.SeverityCritical, findings[0].Severity)
		})
	}

	// Parameterized query is clean
	clean := analyze(t, "app.py", "cursor.execute(\"SELECT * FROM users WHERE id = ?\", (uid,))\n", nil)
	assert.Empty(t, clean)
}

func TestInjectionRisk_FlaggedEvenInTests(t *testing.T) {
	// Injection is flagged regardless of context, unlike debug prints
	findings := analyze(t, "test_db.py", "cursor.execute(\"DELETE FROM t WHERE id = \" + x)\n", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "sql_injection_risk", findings[0].Kind)
}

func TestUnguardedFileOp(t *testing.T) {
	unguarded := analyze(t, "app.py", "f = open(\"data.txt\")\n", nil)
	require.Len(t, unguarded, 1)
	assert.Equal(t, "unguarded_file_op", unguarded[0].Kind)
	assert.Equal(t, types.SeverityMedium, unguarded[0].Severity)

	guarded := "try:\n    f = open(\"data.txt\")\nexcept OSError:\n    pass\n"
	assert.Empty(t, analyze(t, "app.py", guarded, nil))

	withStmt := "with open(\"data.txt\") as f:\n    pass\n"
	assert.Empty(t, analyze(t, "app.py", withStmt, nil))
}

func TestUnguardedFileOp_LookbackWindow(t *testing.T) {
	// try exactly at the window edge still guards
	inWindow := "try:\n\n\n\n\n    f = open(\"a\")\n"
	assert.Empty(t, analyze(t, "app.py", inWindow, nil))

	// try beyond the window does not
	beyond := "try:\n\n\n\n\n\n\n    f = open(\"a\")\n"
	findings := analyze(t, "app.py", beyond, nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "unguarded_file_op", findings[0].Kind)
}

func TestFirstMatchWinsPerLine(t *testing.T) {
	// Maintenance marker outranks the print rule on the same line
	findings := analyze(t, "app.py", "print(\"x\")  # TODO remove\n", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "maintenance_comment", findings[0].Kind)
}

func TestMemoryPattern_CoOccursWithStaticRule(t *testing.T) {
	patterns := []string{"Debug print in production"}
	findings := analyze(t, "app.py", "print(\"x\")  # debug print in production path\n", patterns)

	require.Len(t, findings, 2)
	assert.ElementsMatch(t, []string{"debug_print", "memory_pattern"}, kinds(findings))

	for _, f := range findings {
		if f.Kind == "memory_pattern" {
			assert.True(t, f.FromMemory)
			assert.Equal(t, 1, f.Line)
		} else {
			assert.False(t, f.FromMemory)
		}
	}
}

func TestMemoryPattern_FirstMatchOnly(t *testing.T) {
	patterns := []string{"alpha pattern one", "alpha pattern"}
	findings := analyze(t, "app.py", "x = 1  # alpha pattern one and alpha pattern two\n", patterns)

	// Both patterns match the line but only the first fires
	require.Len(t, findings, 1)
	assert.Equal(t, "memory_pattern", findings[0].Kind)
}

func TestMemoryPattern_MinLengthAndCap(t *testing.T) {
	short := []string{"x = 1"} // below minimum length, ignored
	assert.Empty(t, analyze(t, "app.py", "x = 1\n", short))

	cfg := DefaultConfig()
	prepared := preparePatterns(make([]string, 0), cfg.MinPatternLength, cfg.MaxPatterns)
	assert.Empty(t, prepared)

	// Cap bounds the working set
	many := make([]string, 50)
	for i := range many {
		many[i] = "this is recalled pattern content"
	}
	prepared = preparePatterns(many, cfg.MinPatternLength, cfg.MaxPatterns)
	assert.Len(t, prepared, cfg.MaxPatterns)
}

func TestDeterminism(t *testing.T) {
	content := "# TODO one\nprint(\"a\")\nfrom x import *\ntoken = \"abc\"\n"

	first := analyze(t, "app.py", content, nil)
	second := analyze(t, "app.py", content, nil)

	assert.Equal(t, first, second)
	require.Len(t, first, 4)
	assert.Equal(t, []string{"maintenance_comment", "debug_print", "wildcard_import", "hardcoded_credential"}, kinds(first))
}

func TestUndecodableContentSkipped(t *testing.T) {
	binary := []byte{0x00, 0x01, 0xFF, 0x00}
	d := New(DefaultConfig(), enhance.Noop{})

	findings := d.AnalyzeFile(context.Background(), "blob.py", binary, nil)
	assert.Empty(t, findings)
}

func TestLatin1Fallback(t *testing.T) {
	// Invalid UTF-8 but valid Latin-1; content still gets analyzed
	content := append([]byte("# caf"), 0xE9, '\n')
	content = append(content, []byte("print(\"x\")\n")...)

	d := New(DefaultConfig(), enhance.Noop{})
	findings := d.AnalyzeFile(context.Background(), "app.py", content, nil)

	require.Len(t, findings, 1)
	assert.Equal(t, "debug_print", findings[0].Kind)
	assert.Equal(t, 2, findings[0].Line)
}

// fakeEnhanced is a stub enhanced detector for splice tests.
type fakeEnhanced struct {
	findings []enhance.Finding
	err      error
}

func (f *fakeEnhanced) Name() string { return "fake" }

func (f *fakeEnhanced) AnalyzeFile(ctx context.Context, path, content string) ([]enhance.Finding, error) {
	return f.findings, f.err
}

func TestEnhancedFindingsSpliced(t *testing.T) {
	fake := &fakeEnhanced{findings: []enhance.Finding{{
		Category:         "resource_leak",
		Line:             7,
		Severity:         types.SeverityHigh,
		Message:          "socket never closed",
		Suggestion:       "use a context manager",
		Confidence:       0.85,
		OriginalSeverity: types.SeverityHigh,
	}}}

	d := New(DefaultConfig(), fake)
	findings := d.AnalyzeFile(context.Background(), "app.py", []byte("x = 1\n"), nil)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.True(t, f.Enhanced)
	assert.Equal(t, "resource_leak", f.Kind)
	assert.Equal(t, 7, f.Line)
	assert.Equal(t, types.SeverityHigh, f.Severity)
	assert.Equal(t, "app.py", f.FilePath)
	assert.InDelta(t, 0.85, f.Confidence, 0.001)
}

func TestEnhancedFailureDegradesGracefully(t *testing.T) {
	fake := &fakeEnhanced{err: errors.New("api unavailable")}

	d := New(DefaultConfig(), fake)
	findings := d.AnalyzeFile(context.Background(), "app.py", []byte("# TODO fix\n"), nil)

	// Base-rule findings still stand when the plugin fails
	require.Len(t, findings, 1)
	assert.Equal(t, "maintenance_comment", findings[0].Kind)
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"test_foo.py", true},
		{"foo_test.py", true},
		{"tests/conftest.py", true},
		{"src/test/util.py", true},
		{"foo.py", false},
		{"attested.py", false},
		{"protest/app.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTestFile(tt.path))
		})
	}
}
