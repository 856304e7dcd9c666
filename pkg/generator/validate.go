package generator

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/opencomply/remedygen/pkg/rule"
)

// ValidationReport describes the outcome of validating one generated
// artifact. Validation failure is reported here, never as a Generate
// error: the caller still receives the text alongside the findings.
type ValidationReport struct {
	// Valid is false when the artifact has findings classified as errors.
	Valid bool `json:"valid"`
	// Checker names the tool that produced the verdict: "shellcheck",
	// "syntax", "yaml", or "skipped".
	Checker  string   `json:"checker"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// shellcheckTimeout bounds a single external checker invocation.
const shellcheckTimeout = 5 * time.Second

// validator runs the per-format validation chain. The external checker
// is throttled so batch migration cannot fork-bomb the host.
type validator struct {
	limiter *rate.Limiter

	// runShellcheck executes the external checker and returns its
	// combined findings output. Replaceable in tests.
	runShellcheck func(ctx context.Context, script string) (string, error)

	// shellcheckPath is empty when the binary is not installed.
	shellcheckPath string
}

func newValidator() *validator {
	v := &validator{
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
	if path, err := exec.LookPath("shellcheck"); err == nil {
		v.shellcheckPath = path
	}
	v.runShellcheck = v.execShellcheck
	return v
}

// Validate dispatches on format. Shell artifacts go through the external
// checker when available, falling back to a pure syntax parse; automation
// artifacts must parse as a non-empty document.
func (v *validator) Validate(ctx context.Context, format rule.Format, text string) *ValidationReport {
	switch format {
	case rule.FormatShell:
		return v.validateShell(ctx, text)
	case rule.FormatAutomation:
		return validateAutomation(text)
	default:
		return &ValidationReport{Valid: true, Checker: "skipped"}
	}
}

func (v *validator) validateShell(ctx context.Context, text string) *ValidationReport {
	if v.shellcheckPath != "" {
		report, ok := v.shellcheck(ctx, text)
		if ok {
			return report
		}
		// Checker unavailable or timed out: downgrade to the syntax
		// parse but keep the reason visible.
		fallback := syntaxCheck(text)
		fallback.Warnings = append(fallback.Warnings, "external shell checker unavailable, syntax check only")
		return fallback
	}
	return syntaxCheck(text)
}

// shellcheck runs the external checker. The second return is false when
// the invocation itself could not complete (rate-limit context expiry,
// timeout, missing binary) and the caller should fall back.
func (v *validator) shellcheck(ctx context.Context, text string) (*ValidationReport, bool) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, shellcheckTimeout)
	defer cancel()

	out, err := v.runShellcheck(cctx, text)
	if cctx.Err() != nil {
		slog.Warn("shell checker timed out, falling back to syntax parse")
		return nil, false
	}
	if err != nil && out == "" {
		// The process failed without findings. Treat as unavailable.
		slog.Warn("shell checker failed", "error", err)
		return nil, false
	}

	report := &ValidationReport{Valid: true, Checker: "shellcheck"}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.Contains(line, " error: "):
			report.Errors = append(report.Errors, line)
		case strings.Contains(line, " warning: "), strings.Contains(line, " note: "):
			report.Warnings = append(report.Warnings, line)
		}
	}
	report.Valid = len(report.Errors) == 0
	return report, true
}

// execShellcheck feeds the script on stdin in gcc output format so the
// findings are one line each.
func (v *validator) execShellcheck(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, v.shellcheckPath, "--format=gcc", "--shell=bash", "-")
	cmd.Stdin = strings.NewReader(script)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func syntaxCheck(text string) *ValidationReport {
	report := &ValidationReport{Valid: true, Checker: "syntax"}
	if _, err := syntax.NewParser().Parse(strings.NewReader(text), "generated.sh"); err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, err.Error())
	}
	return report
}

func validateAutomation(text string) *ValidationReport {
	report := &ValidationReport{Valid: true, Checker: "yaml"}
	var doc []map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	if len(doc) == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, "document contains no plays")
	}
	return report
}
