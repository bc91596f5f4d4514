// File: internal/iterate/controller_test.go
package iterate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

type fakeGenerator struct {
	fileSet *schemas.FileSet
	err     error
	calls   int
}

func (g *fakeGenerator) Generate(_ context.Context, _ *schemas.Contract, _ schemas.TriggerKind, _ string) (*schemas.FileSet, error) {
	g.calls++
	return g.fileSet, g.err
}

// fakeValidator fails until passAfter runs have happened.
type fakeValidator struct {
	passAfter int
	runs      int
}

func (v *fakeValidator) Run(_ context.Context, _ *schemas.Contract, _ *schemas.FileSet, _ string) *schemas.PipelineReport {
	v.runs++
	if v.runs > v.passAfter {
		return &schemas.PipelineReport{
			Passed:  true,
			Results: []schemas.StageResult{{Stage: schemas.StageSyntax, Status: schemas.StagePassed}},
		}
	}
	return &schemas.PipelineReport{Results: []schemas.StageResult{{
		Stage:  schemas.StageSyntax,
		Status: schemas.StageFailed,
		Errors: []schemas.StageError{{Message: "unclosed brace", File: "src/app.js", Line: 3, Code: schemas.CodeUnbalanced}},
	}}}
}

type fakeBuilder struct {
	built []*schemas.Feedback
}

func (b *fakeBuilder) Build(report *schemas.PipelineReport, _ *schemas.Contract, _ *schemas.FileSet) *schemas.Feedback {
	fb := &schemas.Feedback{
		IssuesByFile: map[string][]schemas.Issue{
			"src/app.js": {{File: "src/app.js", Line: 3, Severity: schemas.SeverityCritical, Message: "unclosed brace", Code: schemas.CodeUnbalanced}},
		},
		FilesToFix: []string{"src/app.js"},
	}
	b.built = append(b.built, fb)
	return fb
}

type fakeCorrector struct {
	err   error
	calls int
}

func (c *fakeCorrector) Correct(_ context.Context, fs *schemas.FileSet, _ *schemas.Feedback, _ *schemas.Contract) (*schemas.FileSet, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return fs.WithFile(schemas.FileSpec{Path: "src/app.js", Content: "fixed"}), nil
}

func testFileSet(t *testing.T) *schemas.FileSet {
	t.Helper()
	fs, err := schemas.NewFileSet([]schemas.FileSpec{{Path: "src/app.js", Content: "content"}})
	require.NoError(t, err)
	return fs
}

func newController(t *testing.T, gen *fakeGenerator, val *fakeValidator, corr *fakeCorrector, maxAttempts int) (*Controller, *fakeBuilder) {
	t.Helper()
	builder := &fakeBuilder{}
	return NewController(gen, val, builder, corr, maxAttempts, zaptest.NewLogger(t)), builder
}

func TestRunPassesFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{fileSet: testFileSet(t)}
	corr := &fakeCorrector{}
	ctrl, _ := newController(t, gen, &fakeValidator{passAfter: 0}, corr, 5)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 0, corr.calls)
	assert.Positive(t, result.EstimatedTokens)
}

func TestRunConvergesWithinBudget(t *testing.T) {
	gen := &fakeGenerator{fileSet: testFileSet(t)}
	val := &fakeValidator{passAfter: 2}
	corr := &fakeCorrector{}
	ctrl, _ := newController(t, gen, val, corr, 5)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, corr.calls)
	assert.Equal(t, 1, gen.calls, "generation happens once per run")
}

func TestRunExhaustsBudget(t *testing.T) {
	gen := &fakeGenerator{fileSet: testFileSet(t)}
	val := &fakeValidator{passAfter: 100}
	corr := &fakeCorrector{}
	ctrl, _ := newController(t, gen, val, corr, 3)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.NoError(t, err, "exhaustion is a result, not an error")

	assert.False(t, result.Passed)
	assert.Equal(t, 3, result.Attempts, "exactly maxAttempts attempts")
	assert.Equal(t, 2, corr.calls, "no correction after the final attempt")
	require.NotNil(t, result.Report, "last report is always returned")
	assert.NotEmpty(t, result.Report.AllErrors())
}

// markerValidator passes only a FileSet containing the marker path, so tests
// can accept one generator's output and reject another's.
type markerValidator struct{ marker string }

func (v *markerValidator) Run(_ context.Context, _ *schemas.Contract, fs *schemas.FileSet, _ string) *schemas.PipelineReport {
	if _, ok := fs.Resolve(v.marker); ok {
		return &schemas.PipelineReport{
			Passed:  true,
			Results: []schemas.StageResult{{Stage: schemas.StageSyntax, Status: schemas.StagePassed}},
		}
	}
	return &schemas.PipelineReport{Results: []schemas.StageResult{{
		Stage:  schemas.StageSyntax,
		Status: schemas.StageFailed,
		Errors: []schemas.StageError{{Message: "unclosed brace", File: "src/app.js", Line: 3, Code: schemas.CodeUnbalanced}},
	}}}
}

func TestRunFallbackRescuesExhaustedBudget(t *testing.T) {
	fallbackSet, err := schemas.NewFileSet([]schemas.FileSpec{{Path: "src/server.js", Content: "deterministic"}})
	require.NoError(t, err)

	gen := &fakeGenerator{fileSet: testFileSet(t)}
	fallback := &fakeGenerator{fileSet: fallbackSet}
	corr := &fakeCorrector{}
	builder := &fakeBuilder{}
	ctrl := NewController(gen, &markerValidator{marker: "src/server.js"}, builder, corr, 3, zaptest.NewLogger(t)).
		WithFallback(fallback)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.NoError(t, err)

	assert.True(t, result.Passed, "fallback output rescues the run")
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 2, corr.calls, "fallback only runs after the budget is spent")
	assert.Equal(t, 3, result.Attempts)
	_, ok := result.FileSet.Resolve("src/server.js")
	assert.True(t, ok, "result carries the fallback FileSet")
}

func TestRunFailsWhenFallbackAlsoFails(t *testing.T) {
	gen := &fakeGenerator{fileSet: testFileSet(t)}
	fallback := &fakeGenerator{fileSet: testFileSet(t)}
	ctrl, _ := newController(t, gen, &fakeValidator{passAfter: 100}, &fakeCorrector{}, 2)
	ctrl.WithFallback(fallback)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 1, fallback.calls)
	require.NotNil(t, result.Report)
	assert.NotEmpty(t, result.Report.AllErrors(), "failing report from the LLM loop is kept")
}

func TestRunGenerationErrorAborts(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("backend down")}
	ctrl, _ := newController(t, gen, &fakeValidator{}, &fakeCorrector{}, 3)

	_, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial generation")
}

func TestRunCorrectionErrorReturnsPartialResult(t *testing.T) {
	gen := &fakeGenerator{fileSet: testFileSet(t)}
	corr := &fakeCorrector{err: errors.New("model unavailable")}
	ctrl, _ := newController(t, gen, &fakeValidator{passAfter: 100}, corr, 5)

	result, err := ctrl.Run(context.Background(), &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.Error(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.NotNil(t, result.Report)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gen := &fakeGenerator{fileSet: testFileSet(t)}
	val := &fakeValidator{passAfter: 100}
	corr := &fakeCorrector{}
	ctrl, _ := newController(t, gen, val, corr, 100)

	cancel()

	result, err := ctrl.Run(ctx, &schemas.Contract{}, schemas.TriggerInitial, "", "")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, result)
}

func TestEscalationTiers(t *testing.T) {
	baseFeedback := func() *schemas.Feedback {
		return &schemas.Feedback{
			IssuesByFile: map[string][]schemas.Issue{
				"src/app.js": {{File: "src/app.js", Line: 7, Message: "unclosed brace", Code: schemas.CodeUnbalanced}},
			},
			FilesToFix:    []string{"src/app.js"},
			ContractHints: []schemas.Hint{{ID: "p1", Text: "original hint"}},
		}
	}

	t.Run("early attempts stay general", func(t *testing.T) {
		fb := baseFeedback()
		escalate(fb, 2)
		require.NotEmpty(t, fb.ContractHints)
		assert.Equal(t, "directive", fb.ContractHints[0].ID)
		assert.Contains(t, fb.ContractHints[0].Text, "Fix the listed problems")
		assert.NotContains(t, fb.ContractHints[0].Text, "src/app.js")
	})

	t.Run("middle attempts name files and codes", func(t *testing.T) {
		fb := baseFeedback()
		escalate(fb, 3)
		assert.Contains(t, fb.ContractHints[0].Text, "src/app.js")
		assert.Contains(t, fb.ContractHints[0].Text, schemas.CodeUnbalanced)
	})

	t.Run("final attempts enumerate issues verbatim", func(t *testing.T) {
		fb := baseFeedback()
		escalate(fb, 5)
		assert.Contains(t, fb.ContractHints[0].Text, "LAST CHANCE")
		assert.Contains(t, fb.ContractHints[0].Text, "unclosed brace")
		assert.Contains(t, fb.ContractHints[0].Text, "src/app.js:7")
	})

	t.Run("original hints survive escalation", func(t *testing.T) {
		fb := baseFeedback()
		escalate(fb, 3)
		assert.Equal(t, "p1", fb.ContractHints[1].ID)
	})
}
