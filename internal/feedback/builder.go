// File: internal/feedback/builder.go

// Package feedback turns a failed PipelineReport into the structured work
// order the corrector consumes: issues grouped per file, the list of files to
// touch, and the contract hints relevant to what failed.
package feedback

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// criticalStages are the stages whose errors block everything downstream;
// their issues outrank ordinary errors when the corrector prioritizes.
var criticalStages = map[schemas.StageName]struct{}{
	schemas.StageSyntax:     {},
	schemas.StageSchema:     {},
	schemas.StageAssertions: {},
	schemas.StageSecurity:   {},
}

// suggestions maps well-known error codes to a generic fix direction used
// when the stage did not attach one.
var suggestions = map[string]string{
	schemas.CodeUnbalanced:      "balance the delimiters; check the reported line for an unclosed brace, bracket or paren",
	schemas.CodeInvalidJSON:     "correct the JSON so it parses",
	schemas.CodeMissingFile:     "create the file at the expected path",
	schemas.CodeAssertionFailed: "make the file satisfy the contract assertion",
	schemas.CodeStaticRule:      "rewrite the flagged line to satisfy the lint rule",
	schemas.CodeTestFailed:      "implement the route behavior the test spec describes",
	schemas.CodeQualityGate:     "refactor until the metric meets its threshold",
	schemas.CodeSecurityFinding: "remove the insecure construct; never embed secrets or build queries from input",
	schemas.CodeRuntimeCheck:    "make the service start and answer its health check",
}

var (
	assertionIDPattern = regexp.MustCompile(`^assertion (\S+):`)
	ruleNamePattern    = regexp.MustCompile(`^([a-z][a-z0-9-]+):`)
)

// Builder derives Feedback from pipeline reports.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{logger: logger.Named("feedback")}
}

// Build assembles Feedback for one failed run. Errors with no file attribution
// are grouped under the empty path so they still reach the correction prompt.
func (b *Builder) Build(report *schemas.PipelineReport, contract *schemas.Contract, fileSet *schemas.FileSet) *schemas.Feedback {
	fb := &schemas.Feedback{IssuesByFile: make(map[string][]schemas.Issue)}
	failingIDs := make(map[string]struct{})

	for _, result := range report.Results {
		if result.Status != schemas.StageFailed {
			continue
		}
		_, critical := criticalStages[result.Stage]

		for _, se := range result.Errors {
			severity := schemas.SeverityError
			if critical {
				severity = schemas.SeverityCritical
			}
			fb.IssuesByFile[se.File] = append(fb.IssuesByFile[se.File], issueFrom(se, severity))
			collectID(se.Message, failingIDs)
		}
		for _, se := range result.Warnings {
			fb.IssuesByFile[se.File] = append(fb.IssuesByFile[se.File], issueFrom(se, schemas.SeverityWarning))
		}
	}

	for path := range fb.IssuesByFile {
		schemas.SortIssues(fb.IssuesByFile[path])
	}

	fb.FilesToFix = filesToFix(fb, contract, fileSet)
	fb.ContractHints = hints(contract, failingIDs)

	b.logger.Debug("Feedback assembled",
		zap.Int("issues", fb.TotalIssues()),
		zap.Int("files_to_fix", len(fb.FilesToFix)),
		zap.Int("hints", len(fb.ContractHints)),
	)
	return fb
}

func issueFrom(se schemas.StageError, severity schemas.Severity) schemas.Issue {
	return schemas.Issue{
		File:       se.File,
		Line:       se.Line,
		Severity:   severity,
		Message:    se.Message,
		Suggestion: suggestions[se.Code],
		Code:       se.Code,
	}
}

// collectID pulls the assertion ID or rule name out of a stage error message
// so hints can be scoped to what actually failed.
func collectID(message string, ids map[string]struct{}) {
	if m := assertionIDPattern.FindStringSubmatch(message); m != nil {
		ids[m[1]] = struct{}{}
		return
	}
	if m := ruleNamePattern.FindStringSubmatch(message); m != nil {
		ids[m[1]] = struct{}{}
	}
}

// filesToFix is every path with at least one issue, plus the targets of
// failing file-exists assertions that do not exist in the FileSet yet.
func filesToFix(fb *schemas.Feedback, contract *schemas.Contract, fileSet *schemas.FileSet) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for path := range fb.IssuesByFile {
		add(path)
	}
	for _, a := range contract.Validation.Assertions {
		if a.Type != schemas.AssertFileExists || a.File == "" {
			continue
		}
		if _, ok := fileSet.Resolve(a.File); !ok {
			add(a.File)
		}
	}

	sort.Strings(out)
	return out
}

func hints(contract *schemas.Contract, failingIDs map[string]struct{}) []schemas.Hint {
	var out []schemas.Hint
	for _, p := range contract.Generation.PatternsByID(failingIDs) {
		text := p.Description
		if p.Template != "" {
			text = strings.TrimSpace(text + "\n" + p.Template)
		}
		out = append(out, schemas.Hint{ID: p.ID, Text: text})
	}
	return out
}
