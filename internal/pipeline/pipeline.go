// File: internal/pipeline/pipeline.go

// Package pipeline runs the fixed, ordered sequence of validation stages over
// a generated FileSet and aggregates the outcome into a PipelineReport.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/config"
)

// Input is the immutable per-run context handed to every stage.
type Input struct {
	Contract *schemas.Contract
	FileSet  *schemas.FileSet
	WorkDir  string
}

// Outcome is what a stage reports back. The pipeline owns status, timing and
// failure bookkeeping.
type Outcome struct {
	Errors   []schemas.StageError
	Warnings []schemas.StageError
	Metrics  map[string]float64
}

// Stage is one mechanical check. The set of implementations is closed and
// registered in a fixed ordered list; there is no runtime discovery.
type Stage interface {
	Name() schemas.StageName
	// Critical stages halt execution of all subsequent stages when they fail.
	Critical() bool
	Check(ctx context.Context, in Input) Outcome
}

// Pipeline executes stages strictly sequentially. Later stages assume
// invariants established by earlier ones, so there is no intra-run
// parallelism.
type Pipeline struct {
	logger       *zap.Logger
	stages       []Stage
	stageTimeout time.Duration
}

// New assembles the standard eight-stage pipeline in its declared order.
func New(cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		logger:       logger.Named("pipeline"),
		stageTimeout: cfg.StageTimeout,
		stages: []Stage{
			&syntaxStage{},
			&schemaStage{},
			&assertionsStage{},
			&staticStage{},
			&testsStage{},
			&qualityStage{},
			&securityStage{},
			&runtimeStage{tool: cfg.ContainerTool},
		},
	}
}

// NewWithStages builds a pipeline over an explicit stage list. Used by tests
// to exercise ordering and short-circuit behavior with synthetic stages.
func NewWithStages(stages []Stage, stageTimeout time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{logger: logger.Named("pipeline"), stages: stages, stageTimeout: stageTimeout}
}

// Run executes the pipeline once. It never panics and never returns an error:
// every failure mode, including malformed inputs, stage panics and timeouts,
// is converted into stage results inside the report.
func (p *Pipeline) Run(ctx context.Context, contract *schemas.Contract, fileSet *schemas.FileSet, workDir string) *schemas.PipelineReport {
	if contract == nil {
		contract = &schemas.Contract{}
	}
	if fileSet == nil {
		fileSet = &schemas.FileSet{}
	}
	in := Input{Contract: contract, FileSet: fileSet, WorkDir: workDir}

	report := &schemas.PipelineReport{StartedAt: time.Now()}
	shortCircuited := false

	for _, stage := range p.stages {
		if shortCircuited {
			report.Results = append(report.Results, schemas.StageResult{
				Stage:  stage.Name(),
				Status: schemas.StageSkipped,
			})
			continue
		}

		result := p.runStage(ctx, stage, in)
		report.Results = append(report.Results, result)

		p.logger.Debug("Stage finished",
			zap.String("stage", string(stage.Name())),
			zap.String("status", string(result.Status)),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration),
		)

		if result.Status == schemas.StageFailed && stage.Critical() {
			shortCircuited = true
		}
	}

	// Overall pass requires that no executed stage failed; skipped stages are
	// neutral.
	report.Passed = len(report.FailedStages()) == 0
	report.Duration = time.Since(report.StartedAt)
	return report
}

// runStage executes one stage under its timeout, converting panics and
// overruns into ordinary failures so siblings still run.
func (p *Pipeline) runStage(parent context.Context, stage Stage, in Input) schemas.StageResult {
	start := time.Now()

	ctx := parent
	cancel := context.CancelFunc(func() {})
	if p.stageTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, p.stageTimeout)
	}
	defer cancel()

	type stageReturn struct {
		outcome Outcome
		panic   any
	}
	done := make(chan stageReturn, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageReturn{panic: r}
			}
		}()
		done <- stageReturn{outcome: stage.Check(ctx, in)}
	}()

	var result schemas.StageResult
	select {
	case ret := <-done:
		if ret.panic != nil {
			result = schemas.StageResult{
				Stage:  stage.Name(),
				Status: schemas.StageFailed,
				Errors: []schemas.StageError{{
					Message: fmt.Sprintf("stage implementation panicked: %v", ret.panic),
					Code:    schemas.CodeStagePanic,
				}},
			}
			p.logger.Error("Panic recovered at pipeline boundary",
				zap.String("stage", string(stage.Name())),
				zap.Any("panic_value", ret.panic),
			)
			break
		}
		status := schemas.StagePassed
		if len(ret.outcome.Errors) > 0 {
			status = schemas.StageFailed
		}
		result = schemas.StageResult{
			Stage:    stage.Name(),
			Status:   status,
			Errors:   ret.outcome.Errors,
			Warnings: ret.outcome.Warnings,
			Metrics:  ret.outcome.Metrics,
		}
	case <-ctx.Done():
		// The stage goroutine is abandoned; a timeout aborts only this
		// stage's contribution, not the pipeline.
		result = schemas.StageResult{
			Stage:  stage.Name(),
			Status: schemas.StageFailed,
			Errors: []schemas.StageError{{
				Message: fmt.Sprintf("stage exceeded its %s timeout", p.stageTimeout),
				Code:    schemas.CodeTimeout,
			}},
		}
	}

	result.Duration = time.Since(start)
	return result
}
