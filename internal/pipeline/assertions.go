// File: internal/pipeline/assertions.go
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// assertionsStage runs the contract-declared checks against the FileSet.
// File lookup is tolerant: a bare path matches any file that ends in it, and
// singular/plural variants of the final element are tried.
type assertionsStage struct{}

func (s *assertionsStage) Name() schemas.StageName { return schemas.StageAssertions }
func (s *assertionsStage) Critical() bool          { return true }

func (s *assertionsStage) Check(_ context.Context, in Input) Outcome {
	var out Outcome
	total, failed := 0, 0

	for _, a := range in.Contract.Validation.Assertions {
		total++
		if err, ok := checkAssertion(a, in.FileSet); !ok {
			failed++
			out.Errors = append(out.Errors, err)
		}
	}

	out.Metrics = map[string]float64{
		"assertions": float64(total),
		"failed":     float64(failed),
	}
	return out
}

func checkAssertion(a schemas.Assertion, fs *schemas.FileSet) (schemas.StageError, bool) {
	file, found := fs.Resolve(a.File)

	fail := func(msg string) (schemas.StageError, bool) {
		return schemas.StageError{
			Message: fmt.Sprintf("assertion %s: %s", a.ID, msg),
			File:    a.File,
			Code:    schemas.CodeAssertionFailed,
		}, false
	}

	if a.Type == schemas.AssertFileExists {
		if !found {
			return fail(fmt.Sprintf("file %q does not exist", a.File))
		}
		return schemas.StageError{}, true
	}

	// Every other assertion type inspects content; a missing file fails it.
	if !found {
		return fail(fmt.Sprintf("file %q does not exist", a.File))
	}

	switch a.Type {
	case schemas.AssertFileContains:
		if !strings.Contains(file.Content, a.Value) {
			return fail(fmt.Sprintf("file does not contain %q", a.Value))
		}
	case schemas.AssertFileNotContains:
		if strings.Contains(file.Content, a.Value) {
			return fail(fmt.Sprintf("file must not contain %q", a.Value))
		}
	case schemas.AssertExportsFunction:
		if !exportsFunction(file.Content, a.Value) {
			return fail(fmt.Sprintf("file does not export function %q", a.Value))
		}
	case schemas.AssertExportsClass:
		if !exportsClass(file.Content, a.Value) {
			return fail(fmt.Sprintf("file does not export class %q", a.Value))
		}
	case schemas.AssertErrorHandling:
		if !hasErrorHandling(file.Content) {
			return fail("file has no error handling (try/catch or .catch)")
		}
	case schemas.AssertValidation:
		if !hasInputValidation(file.Content) {
			return fail("file has no input validation")
		}
	default:
		return fail(fmt.Sprintf("unknown assertion type %q", a.Type))
	}
	return schemas.StageError{}, true
}

func exportsFunction(content, name string) bool {
	q := regexp.QuoteMeta(name)
	patterns := []string{
		`export\s+(async\s+)?function\s+` + q + `\b`,
		`export\s+const\s+` + q + `\s*=`,
		`exports\.` + q + `\s*=`,
		`module\.exports\s*=\s*` + q + `\b`,
		`module\.exports\s*=\s*\{[^}]*\b` + q + `\b`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(content) {
			return true
		}
	}
	return false
}

func exportsClass(content, name string) bool {
	q := regexp.QuoteMeta(name)
	patterns := []string{
		`export\s+(default\s+)?class\s+` + q + `\b`,
		`exports\.` + q + `\s*=\s*class\b`,
		`module\.exports\s*=\s*` + q + `\b`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(content) {
			return true
		}
	}
	// A class declared in the file and later exported by name.
	declared := regexp.MustCompile(`class\s+` + q + `\b`).MatchString(content)
	exported := regexp.MustCompile(`\b` + q + `\b`).MatchString(content)
	return declared && exported && strings.Contains(content, "exports")
}

func hasErrorHandling(content string) bool {
	return regexp.MustCompile(`\btry\s*\{`).MatchString(content) ||
		strings.Contains(content, ".catch(")
}

// hasInputValidation applies field-validation heuristics: an explicit
// validator call, a required-field guard, or a format check.
func hasInputValidation(content string) bool {
	patterns := []string{
		`\bvalidate\w*\s*\(`,
		`\bjoi\.`,
		`\bzod\.|\bz\.object\(`,
		`if\s*\(\s*!\s*\w+(\.\w+)*\s*(\)|\|\||&&)`,
		`\.includes\('@'\)|@.+\\\.|emailRegex|isEmail`,
		`typeof\s+\w+(\.\w+)*\s*[!=]==?\s*['"]`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(content) {
			return true
		}
	}
	return false
}
