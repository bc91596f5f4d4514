// File: internal/pipeline/security.go
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// securityScan is one named pattern scan. Always-on scans run for every
// contract; the rest only when the contract enables them by name.
type securityScan struct {
	name     string
	alwaysOn bool
	pattern  *regexp.Regexp
	message  string
	severity schemas.Severity
}

var securityScans = []securityScan{
	{
		name:     "hardcoded-secrets",
		alwaysOn: true,
		// Requires a quoted literal on the right-hand side so that values read
		// from process.env or config never match.
		pattern:  regexp.MustCompile(`(?i)\b(password|passwd|secret|api[_-]?key|token|private[_-]?key)\b\s*[:=]\s*['"][^'"]{4,}['"]`),
		message:  "hardcoded credential or secret",
		severity: schemas.SeverityCritical,
	},
	{
		name:     "sql-injection",
		alwaysOn: true,
		pattern:  regexp.MustCompile(`(?i)(query|execute)\s*\(\s*['"` + "`" + `]\s*(SELECT|INSERT|UPDATE|DELETE)[^'"` + "`" + `]*['"` + "`" + `]\s*\+|\$\{[^}]*\}[^'"` + "`" + `]*(WHERE|VALUES)`),
		message:  "SQL built by string concatenation or interpolation",
		severity: schemas.SeverityCritical,
	},
	{
		name:     "xss-sink",
		alwaysOn: true,
		pattern:  regexp.MustCompile(`\.innerHTML\s*=|document\.write\s*\(|dangerouslySetInnerHTML`),
		message:  "unescaped write into an HTML sink",
		severity: schemas.SeverityError,
	},
	{
		name:     "dynamic-eval",
		alwaysOn: true,
		pattern:  regexp.MustCompile(`\beval\s*\(|new\s+Function\s*\(`),
		message:  "dynamic code evaluation",
		severity: schemas.SeverityCritical,
	},
	{
		name:     "insecure-transport",
		pattern:  regexp.MustCompile(`['"` + "`" + `]http://(?:[^l'"` + "`" + `]|l(?:[^o]|o(?:[^c]|c[^a])))[^'"` + "`" + `]*['"` + "`" + `]`),
		message:  "plain-HTTP URL to a non-local host",
		severity: schemas.SeverityWarning,
	},
}

// securityStage runs pattern scans for common vulnerability classes. Critical
// because a finding here means the generated code must not reach the runtime
// stage, let alone production.
type securityStage struct{}

func (s *securityStage) Name() schemas.StageName { return schemas.StageSecurity }
func (s *securityStage) Critical() bool          { return true }

func (s *securityStage) Check(_ context.Context, in Input) Outcome {
	var out Outcome
	enabled := enabledScans(in.Contract)
	findings := 0

	for _, f := range in.FileSet.Files {
		if !isScriptFile(f.Path) && !strings.HasSuffix(f.Path, ".json") {
			continue
		}
		lines := strings.Split(f.Content, "\n")

		for _, scan := range securityScans {
			if !scan.alwaysOn {
				if _, ok := enabled[scan.name]; !ok {
					continue
				}
			}
			for i, line := range lines {
				trimmed := strings.TrimSpace(line)
				if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
					continue
				}
				if !scan.pattern.MatchString(line) {
					continue
				}
				findings++
				se := schemas.StageError{
					Message: fmt.Sprintf("%s: %s", scan.name, scan.message),
					File:    f.Path,
					Line:    i + 1,
					Code:    schemas.CodeSecurityFinding,
				}
				if scan.severity == schemas.SeverityWarning {
					out.Warnings = append(out.Warnings, se)
				} else {
					out.Errors = append(out.Errors, se)
				}
			}
		}
	}

	// Contract-enabled validation scan: every required field with a declared
	// format needs some visible validation in the FileSet.
	if _, ok := enabled["input-validation"]; ok {
		vErrs := missingValidation(in)
		out.Errors = append(out.Errors, vErrs...)
		findings += len(vErrs)
	}

	out.Metrics = map[string]float64{"findings": float64(findings)}
	return out
}

func enabledScans(c *schemas.Contract) map[string]struct{} {
	out := make(map[string]struct{}, len(c.Validation.SecurityChecks))
	for _, check := range c.Validation.SecurityChecks {
		if check.Enabled {
			out[check.Name] = struct{}{}
		}
	}
	return out
}

// missingValidation reports entities whose formatted fields have no matching
// validation anywhere in the generated scripts.
func missingValidation(in Input) []schemas.StageError {
	var allScripts strings.Builder
	for _, f := range in.FileSet.Files {
		if isScriptFile(f.Path) {
			allScripts.WriteString(f.Content)
			allScripts.WriteString("\n")
		}
	}
	scripts := allScripts.String()

	var errs []schemas.StageError
	for _, entity := range in.Contract.Definition.Entities {
		for _, field := range entity.Fields {
			if field.Format == "" {
				continue
			}
			if !fieldValidated(scripts, field) {
				errs = append(errs, schemas.StageError{
					Message: fmt.Sprintf("input-validation: field %s.%s declares format %q but no validation was found",
						entity.Name, field.Name, field.Format),
					Code: schemas.CodeSecurityFinding,
				})
			}
		}
	}
	return errs
}

func fieldValidated(scripts string, field schemas.Field) bool {
	if !strings.Contains(scripts, field.Name) {
		return false
	}
	switch field.Format {
	case "email":
		return regexp.MustCompile(`isEmail|emailRegex|includes\('@'\)|@.+\\\.`).MatchString(scripts)
	case "url", "uri":
		return regexp.MustCompile(`isURL|new URL\(|urlRegex`).MatchString(scripts)
	case "uuid":
		return regexp.MustCompile(`isUUID|uuidRegex|[0-9a-f]{8}\\?-`).MatchString(scripts)
	default:
		return hasInputValidation(scripts)
	}
}
