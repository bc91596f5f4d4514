// File: internal/pipeline/static.go
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// staticRule is one regex-driven lint rule. Severity defaults below but can
// be overridden per contract through ValidationLayer.StaticRules.
type staticRule struct {
	name       string
	pattern    *regexp.Regexp
	severity   schemas.Severity
	message    string
	suggestion string
}

var staticRules = []staticRule{
	{
		name:       "no-explicit-any",
		pattern:    regexp.MustCompile(`:\s*any\b`),
		severity:   schemas.SeverityWarning,
		message:    "explicit 'any' type annotation",
		suggestion: "replace 'any' with 'unknown' or a concrete type",
	},
	{
		name:       "prefer-const",
		pattern:    regexp.MustCompile(`\bvar\s+\w+`),
		severity:   schemas.SeverityWarning,
		message:    "'var' declaration",
		suggestion: "use 'const' (or 'let' when reassigned)",
	},
	{
		name:       "eqeqeq",
		pattern:    regexp.MustCompile(`[^=!<>]==[^=]|[^=!<>]!=[^=]`),
		severity:   schemas.SeverityWarning,
		message:    "loose equality comparison",
		suggestion: "use === / !==",
	},
	{
		name:       "no-console",
		pattern:    regexp.MustCompile(`\bconsole\.(log|warn|error|debug|info)\s*\(`),
		severity:   schemas.SeverityWarning,
		message:    "console call in generated code",
		suggestion: "route output through the application logger",
	},
	{
		name:       "no-debugger",
		pattern:    regexp.MustCompile(`\bdebugger\b`),
		severity:   schemas.SeverityError,
		message:    "'debugger' statement",
		suggestion: "remove the debugger statement",
	},
}

const (
	maxFileLines = 400
	maxLineChars = 160
)

// staticStage runs the regex rule engine plus the built-in file-length,
// line-length and TODO checks. Non-critical: findings accumulate but later
// stages still run.
type staticStage struct{}

func (s *staticStage) Name() schemas.StageName { return schemas.StageStatic }
func (s *staticStage) Critical() bool          { return false }

func (s *staticStage) Check(_ context.Context, in Input) Outcome {
	var out Outcome
	severities := contractSeverities(in.Contract)
	findings := 0

	for _, f := range in.FileSet.Files {
		if !isScriptFile(f.Path) {
			continue
		}
		lines := strings.Split(f.Content, "\n")

		for _, rule := range staticRules {
			severity := rule.severity
			if override, ok := severities[rule.name]; ok {
				severity = override
			}
			for i, line := range lines {
				if !rule.pattern.MatchString(line) {
					continue
				}
				findings++
				se := schemas.StageError{
					Message: fmt.Sprintf("%s: %s", rule.name, rule.message),
					File:    f.Path,
					Line:    i + 1,
					Code:    schemas.CodeStaticRule,
				}
				if severity == schemas.SeverityWarning {
					out.Warnings = append(out.Warnings, se)
				} else {
					out.Errors = append(out.Errors, se)
				}
			}
		}

		// Built-in structural warnings, independent of the contract.
		if len(lines) > maxFileLines {
			out.Warnings = append(out.Warnings, schemas.StageError{
				Message: fmt.Sprintf("file is %d lines long (limit %d)", len(lines), maxFileLines),
				File:    f.Path,
				Code:    schemas.CodeStaticRule,
			})
		}
		for i, line := range lines {
			if len(line) > maxLineChars {
				out.Warnings = append(out.Warnings, schemas.StageError{
					Message: fmt.Sprintf("line exceeds %d characters", maxLineChars),
					File:    f.Path,
					Line:    i + 1,
					Code:    schemas.CodeStaticRule,
				})
			}
			if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
				out.Warnings = append(out.Warnings, schemas.StageError{
					Message: "unresolved TODO/FIXME marker",
					File:    f.Path,
					Line:    i + 1,
					Code:    schemas.CodeStaticRule,
				})
			}
		}
	}

	out.Metrics = map[string]float64{"findings": float64(findings)}
	return out
}

func contractSeverities(c *schemas.Contract) map[string]schemas.Severity {
	out := make(map[string]schemas.Severity, len(c.Validation.StaticRules))
	for _, r := range c.Validation.StaticRules {
		switch strings.ToLower(r.Severity) {
		case "error", "critical":
			out[r.Name] = schemas.SeverityError
		case "warning", "warn":
			out[r.Name] = schemas.SeverityWarning
		}
	}
	return out
}
