// File: internal/iterate/controller.go

// Package iterate drives the generate-validate-correct loop until the
// pipeline passes or the attempt budget runs out. Correction pressure
// escalates with the attempt number so the loop never keeps repeating a
// prompt that already failed.
package iterate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// Validator runs the validation pipeline over one FileSet.
type Validator interface {
	Run(ctx context.Context, contract *schemas.Contract, fileSet *schemas.FileSet, workDir string) *schemas.PipelineReport
}

// FeedbackBuilder derives a correction work order from a failed report.
type FeedbackBuilder interface {
	Build(report *schemas.PipelineReport, contract *schemas.Contract, fileSet *schemas.FileSet) *schemas.Feedback
}

// Result is the outcome of one full iteration run. It is always populated,
// including after exhaustion: the caller gets the last FileSet and report
// regardless of success.
type Result struct {
	FileSet  *schemas.FileSet
	Report   *schemas.PipelineReport
	Attempts int
	Passed   bool
	// EstimatedTokens approximates prompt cost across the run at four
	// characters per token.
	EstimatedTokens int
	Elapsed         time.Duration
}

// Controller owns one contract's iteration loop.
type Controller struct {
	generator   schemas.Generator
	validator   Validator
	feedback    FeedbackBuilder
	corrector   schemas.Corrector
	fallback    schemas.Generator
	maxAttempts int
	logger      *zap.Logger
}

func NewController(
	generator schemas.Generator,
	validator Validator,
	feedback FeedbackBuilder,
	corrector schemas.Corrector,
	maxAttempts int,
	logger *zap.Logger,
) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Controller{
		generator:   generator,
		validator:   validator,
		feedback:    feedback,
		corrector:   corrector,
		maxAttempts: maxAttempts,
		logger:      logger.Named("iterate"),
	}
}

// WithFallback installs a deterministic generator that is tried once after the
// attempt budget is exhausted, before the run is allowed to fail outright.
func (c *Controller) WithFallback(fallback schemas.Generator) *Controller {
	c.fallback = fallback
	return c
}

// Run generates a FileSet and iterates corrections until the pipeline passes
// or maxAttempts is reached. The attempt counter includes the initial
// generation, so maxAttempts=5 means one generation plus four corrections.
func (c *Controller) Run(ctx context.Context, contract *schemas.Contract, trigger schemas.TriggerKind, extra, workDir string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	fileSet, err := c.generator.Generate(ctx, contract, trigger, extra)
	if err != nil {
		return nil, fmt.Errorf("initial generation: %w", err)
	}
	result.EstimatedTokens += estimateTokens(fileSet)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}

		result.Attempts = attempt
		result.FileSet = fileSet
		result.Report = c.validator.Run(ctx, contract, fileSet, workDir)

		if result.Report.Passed {
			result.Passed = true
			result.Elapsed = time.Since(start)
			c.logger.Info("Validation passed",
				zap.Int("attempt", attempt),
				zap.Int("fileset_version", fileSet.Version),
				zap.Duration("elapsed", result.Elapsed),
			)
			return result, nil
		}

		c.logger.Warn("Validation failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Int("failed_stages", len(result.Report.FailedStages())),
		)

		if attempt == c.maxAttempts {
			break
		}

		fb := c.feedback.Build(result.Report, contract, fileSet)
		escalate(fb, attempt+1)
		result.EstimatedTokens += estimateFeedbackTokens(fb)

		corrected, err := c.corrector.Correct(ctx, fileSet, fb, contract)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("correction attempt %d: %w", attempt, err)
		}
		result.EstimatedTokens += estimateTokens(corrected)
		fileSet = corrected
	}

	c.logger.Error("Attempt budget exhausted",
		zap.Int("attempts", result.Attempts),
		zap.Int("remaining_errors", len(result.Report.AllErrors())),
	)

	if c.fallback != nil {
		c.tryFallback(ctx, contract, trigger, extra, workDir, result)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// tryFallback generates a deterministic FileSet and keeps it only when it
// passes the pipeline. A failing fallback leaves the last LLM attempt and its
// report in place since that one carries the richer diagnostics.
func (c *Controller) tryFallback(ctx context.Context, contract *schemas.Contract, trigger schemas.TriggerKind, extra, workDir string, result *Result) {
	c.logger.Warn("Trying deterministic fallback generation")
	fileSet, err := c.fallback.Generate(ctx, contract, trigger, extra)
	if err != nil {
		c.logger.Error("Fallback generation failed", zap.Error(err))
		return
	}
	report := c.validator.Run(ctx, contract, fileSet, workDir)
	if !report.Passed {
		c.logger.Error("Fallback output did not pass the pipeline",
			zap.Int("remaining_errors", len(report.AllErrors())),
		)
		return
	}
	result.FileSet = fileSet
	result.Report = report
	result.Passed = true
	c.logger.Info("Deterministic fallback passed validation",
		zap.Int("fileset_version", fileSet.Version),
	)
}

// escalate prepends the attempt-scaled directive to the feedback. The tier
// texts live in Directive so the contract loop escalates the same way.
func escalate(fb *schemas.Feedback, attempt int) {
	directive := Directive(attempt, feedbackProblems(fb))
	fb.ContractHints = append([]schemas.Hint{{ID: "directive", Text: directive}}, fb.ContractHints...)
}

// feedbackProblems flattens a feedback work order into the loop's Problem
// vocabulary, in FilesToFix order. Files flagged without issues (missing
// files) keep a path-only entry so the middle tier still names them.
func feedbackProblems(fb *schemas.Feedback) []Problem {
	var out []Problem
	for _, path := range fb.FilesToFix {
		issues := fb.IssuesByFile[path]
		if len(issues) == 0 {
			out = append(out, Problem{Path: path})
			continue
		}
		for _, issue := range issues {
			out = append(out, Problem{
				Path:    path,
				Line:    issue.Line,
				Message: issue.Message,
				Code:    issue.Code,
			})
		}
	}
	return out
}

func estimateTokens(fs *schemas.FileSet) int {
	if fs == nil {
		return 0
	}
	return fs.TotalSize() / 4
}

func estimateFeedbackTokens(fb *schemas.Feedback) int {
	chars := 0
	for _, issues := range fb.IssuesByFile {
		for _, issue := range issues {
			chars += len(issue.Message) + len(issue.Suggestion)
		}
	}
	for _, h := range fb.ContractHints {
		chars += len(h.Text)
	}
	return chars / 4
}
