// File: internal/feedback/builder_test.go
package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

func TestBuildGroupsAndSortsIssues(t *testing.T) {
	report := &schemas.PipelineReport{Results: []schemas.StageResult{
		{
			Stage:  schemas.StageStatic,
			Status: schemas.StageFailed,
			Errors: []schemas.StageError{
				{Message: "no-debugger: 'debugger' statement", File: "src/app.js", Line: 9, Code: schemas.CodeStaticRule},
			},
			Warnings: []schemas.StageError{
				{Message: "no-console: console call", File: "src/app.js", Line: 2, Code: schemas.CodeStaticRule},
			},
		},
		{
			Stage:  schemas.StageSecurity,
			Status: schemas.StageFailed,
			Errors: []schemas.StageError{
				{Message: "dynamic-eval: dynamic code evaluation", File: "src/app.js", Line: 5, Code: schemas.CodeSecurityFinding},
			},
		},
		{Stage: schemas.StageRuntime, Status: schemas.StageSkipped},
	}}

	b := NewBuilder(zaptest.NewLogger(t))
	fb := b.Build(report, &schemas.Contract{}, &schemas.FileSet{})

	issues := fb.IssuesByFile["src/app.js"]
	require.Len(t, issues, 3)
	// Security finding is critical so it sorts first despite its line number.
	assert.Equal(t, schemas.SeverityCritical, issues[0].Severity)
	assert.Equal(t, 5, issues[0].Line)
	assert.Equal(t, schemas.SeverityError, issues[1].Severity)
	assert.Equal(t, schemas.SeverityWarning, issues[2].Severity)

	assert.Equal(t, []string{"src/app.js"}, fb.FilesToFix)
	assert.NotEmpty(t, issues[0].Suggestion)
}

func TestBuildIncludesMissingAssertionTargets(t *testing.T) {
	report := &schemas.PipelineReport{Results: []schemas.StageResult{{
		Stage:  schemas.StageSyntax,
		Status: schemas.StageFailed,
		Errors: []schemas.StageError{
			{Message: `required file "routes/orders.js" is missing`, File: "routes/orders.js", Code: schemas.CodeMissingFile},
		},
	}}}
	contract := &schemas.Contract{Validation: schemas.ValidationLayer{
		Assertions: []schemas.Assertion{
			{ID: "a1", Type: schemas.AssertFileExists, File: "routes/orders.js"},
			{ID: "a2", Type: schemas.AssertFileExists, File: "routes/users.js"},
		},
	}}
	fs, err := schemas.NewFileSet([]schemas.FileSpec{{Path: "src/routes/users.js", Content: "x"}})
	require.NoError(t, err)

	fb := NewBuilder(zaptest.NewLogger(t)).Build(report, contract, fs)

	// orders.js is absent and listed once; users.js resolves and is excluded.
	assert.Equal(t, []string{"routes/orders.js"}, fb.FilesToFix)
}

func TestBuildScopesHintsToFailingIDs(t *testing.T) {
	report := &schemas.PipelineReport{Results: []schemas.StageResult{{
		Stage:  schemas.StageAssertions,
		Status: schemas.StageFailed,
		Errors: []schemas.StageError{
			{Message: `assertion error-handling: file has no error handling (try/catch or .catch)`, File: "src/app.js", Code: schemas.CodeAssertionFailed},
		},
	}}}
	contract := &schemas.Contract{Generation: schemas.GenerationLayer{Patterns: []schemas.Pattern{
		{ID: "error-handling", Description: "wrap async handlers in try/catch"},
		{ID: "pagination", Description: "unrelated"},
	}}}

	fb := NewBuilder(zaptest.NewLogger(t)).Build(report, contract, &schemas.FileSet{})

	require.Len(t, fb.ContractHints, 1)
	assert.Equal(t, "error-handling", fb.ContractHints[0].ID)
}

func TestBuildPassingReportYieldsEmptyFeedback(t *testing.T) {
	report := &schemas.PipelineReport{Results: []schemas.StageResult{
		{Stage: schemas.StageSyntax, Status: schemas.StagePassed},
	}, Passed: true}

	fb := NewBuilder(zaptest.NewLogger(t)).Build(report, &schemas.Contract{}, &schemas.FileSet{})

	assert.Zero(t, fb.TotalIssues())
	assert.Empty(t, fb.FilesToFix)
}
