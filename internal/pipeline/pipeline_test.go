// File: internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

func TestMain(m *testing.M) {
	// The timeout path deliberately abandons a stage goroutine; that is the
	// documented contract, not a leak in the pipeline itself.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/xkilldash9x/foundry-cli/internal/pipeline.(*Pipeline).runStage.func2"),
	)
}

// fakeStage is a scriptable stage for driver tests.
type fakeStage struct {
	name     schemas.StageName
	critical bool
	check    func(ctx context.Context, in Input) Outcome
	calls    atomic.Int32
}

func (f *fakeStage) Name() schemas.StageName { return f.name }
func (f *fakeStage) Critical() bool          { return f.critical }
func (f *fakeStage) Check(ctx context.Context, in Input) Outcome {
	f.calls.Add(1)
	if f.check == nil {
		return Outcome{}
	}
	return f.check(ctx, in)
}

func failing() func(context.Context, Input) Outcome {
	return func(context.Context, Input) Outcome {
		return Outcome{Errors: []schemas.StageError{{Message: "boom"}}}
	}
}

func newFileSet(t *testing.T, files ...schemas.FileSpec) *schemas.FileSet {
	t.Helper()
	fs, err := schemas.NewFileSet(files)
	require.NoError(t, err)
	return fs
}

func TestRunShortCircuitsOnCriticalFailure(t *testing.T) {
	a := &fakeStage{name: "a", critical: true, check: failing()}
	b := &fakeStage{name: "b"}
	c := &fakeStage{name: "c", critical: true}

	p := NewWithStages([]Stage{a, b, c}, time.Second, zaptest.NewLogger(t))
	report := p.Run(context.Background(), &schemas.Contract{}, &schemas.FileSet{}, "")

	require.Len(t, report.Results, 3)
	assert.Equal(t, schemas.StageFailed, report.Results[0].Status)
	assert.Equal(t, schemas.StageSkipped, report.Results[1].Status)
	assert.Equal(t, schemas.StageSkipped, report.Results[2].Status)
	assert.False(t, report.Passed)

	assert.Equal(t, int32(0), b.calls.Load(), "skipped stage must never be invoked")
	assert.Equal(t, int32(0), c.calls.Load(), "skipped stage must never be invoked")
}

func TestRunNonCriticalFailureContinues(t *testing.T) {
	a := &fakeStage{name: "a", check: failing()}
	b := &fakeStage{name: "b"}

	p := NewWithStages([]Stage{a, b}, time.Second, zaptest.NewLogger(t))
	report := p.Run(context.Background(), &schemas.Contract{}, &schemas.FileSet{}, "")

	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, schemas.StagePassed, report.Results[1].Status)
	assert.False(t, report.Passed)
}

func TestRunRecoversStagePanic(t *testing.T) {
	a := &fakeStage{name: "a", check: func(context.Context, Input) Outcome {
		panic("stage exploded")
	}}
	b := &fakeStage{name: "b"}

	p := NewWithStages([]Stage{a, b}, time.Second, zaptest.NewLogger(t))

	var report *schemas.PipelineReport
	require.NotPanics(t, func() {
		report = p.Run(context.Background(), &schemas.Contract{}, &schemas.FileSet{}, "")
	})

	first := report.Results[0]
	assert.Equal(t, schemas.StageFailed, first.Status)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, schemas.CodeStagePanic, first.Errors[0].Code)
	assert.Contains(t, first.Errors[0].Message, "stage exploded")
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestRunStageTimeout(t *testing.T) {
	slow := &fakeStage{name: "slow", check: func(ctx context.Context, _ Input) Outcome {
		<-ctx.Done()
		return Outcome{}
	}}
	after := &fakeStage{name: "after"}

	p := NewWithStages([]Stage{slow, after}, 20*time.Millisecond, zaptest.NewLogger(t))
	report := p.Run(context.Background(), &schemas.Contract{}, &schemas.FileSet{}, "")

	first := report.Results[0]
	assert.Equal(t, schemas.StageFailed, first.Status)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, schemas.CodeTimeout, first.Errors[0].Code)

	// Only the slow stage is aborted; the next one still runs.
	assert.Equal(t, int32(1), after.calls.Load())
}

func TestRunToleratesNilInputs(t *testing.T) {
	p := NewWithStages([]Stage{&fakeStage{name: "a"}}, time.Second, zaptest.NewLogger(t))

	var report *schemas.PipelineReport
	require.NotPanics(t, func() {
		report = p.Run(context.Background(), nil, nil, "")
	})
	assert.True(t, report.Passed)
}

func TestPassRateExcludesSkipped(t *testing.T) {
	a := &fakeStage{name: "a", critical: true, check: failing()}
	b := &fakeStage{name: "b"}
	c := &fakeStage{name: "c"}

	p := NewWithStages([]Stage{a, b, c}, time.Second, zaptest.NewLogger(t))
	report := p.Run(context.Background(), &schemas.Contract{}, &schemas.FileSet{}, "")

	// One executed, zero passed; the two skipped stages do not count.
	assert.Equal(t, 0.0, report.PassRate())
}

func TestNewRegistersStandardOrder(t *testing.T) {
	p := newTestPipeline(t)

	want := []schemas.StageName{
		schemas.StageSyntax, schemas.StageSchema, schemas.StageAssertions,
		schemas.StageStatic, schemas.StageTests, schemas.StageQuality,
		schemas.StageSecurity, schemas.StageRuntime,
	}
	require.Len(t, p.stages, len(want))
	for i, stage := range p.stages {
		assert.Equal(t, want[i], stage.Name())
	}
}
