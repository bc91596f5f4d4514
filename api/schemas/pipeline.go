package schemas

import "time"

// -- Pipeline Schemas --

// StageName identifies one validation stage. The set is closed; stages run in
// the fixed order declared by the pipeline, never discovered at runtime.
type StageName string

const (
	StageSyntax     StageName = "syntax"
	StageSchema     StageName = "schema"
	StageAssertions StageName = "assertions"
	StageStatic     StageName = "static-analysis"
	StageTests      StageName = "tests"
	StageQuality    StageName = "quality"
	StageSecurity   StageName = "security"
	StageRuntime    StageName = "runtime"
)

// StageStatus records how a stage ended. Stages skipped by a critical
// short-circuit are neutral: they neither pass nor fail the run.
type StageStatus string

const (
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// Well-known stage error codes.
const (
	CodeTimeout         = "TIMEOUT"
	CodeStagePanic      = "STAGE_PANIC"
	CodeUnbalanced      = "UNBALANCED_DELIMITER"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeMissingFile     = "MISSING_FILE"
	CodeSchemaViolation = "SCHEMA_VIOLATION"
	CodeAssertionFailed = "ASSERTION_FAILED"
	CodeStaticRule      = "STATIC_RULE"
	CodeTestFailed      = "TEST_FAILED"
	CodeQualityGate     = "QUALITY_GATE"
	CodeSecurityFinding = "SECURITY_FINDING"
	CodeRuntimeCheck    = "RUNTIME_CHECK"
)

// StageError is one problem reported by a stage, optionally pinned to a file
// and line in the FileSet.
type StageError struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StageResult is the outcome of a single stage execution.
type StageResult struct {
	Stage    StageName          `json:"stage"`
	Status   StageStatus        `json:"status"`
	Errors   []StageError       `json:"errors,omitempty"`
	Warnings []StageError       `json:"warnings,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Duration time.Duration      `json:"durationMs"`
}

// Passed reports whether the stage executed and found no errors.
func (r StageResult) Passed() bool { return r.Status == StagePassed }

// PipelineReport aggregates the ordered stage results of one pipeline run.
type PipelineReport struct {
	Results   []StageResult `json:"results"`
	Passed    bool          `json:"passed"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Result returns the recorded result for the named stage, if present.
func (p *PipelineReport) Result(stage StageName) (StageResult, bool) {
	for _, r := range p.Results {
		if r.Stage == stage {
			return r, true
		}
	}
	return StageResult{}, false
}

// FailedStages returns the stages that executed and failed, in run order.
func (p *PipelineReport) FailedStages() []StageResult {
	var out []StageResult
	for _, r := range p.Results {
		if r.Status == StageFailed {
			out = append(out, r)
		}
	}
	return out
}

// AllErrors flattens every error from every failed stage, in run order.
func (p *PipelineReport) AllErrors() []StageError {
	var out []StageError
	for _, r := range p.Results {
		out = append(out, r.Errors...)
	}
	return out
}

// PassRate is the fraction of executed stages that passed. Skipped stages are
// excluded from both numerator and denominator, so a run short-circuited by
// an early critical failure is judged only on what actually ran.
func (p *PipelineReport) PassRate() float64 {
	executed, passed := 0, 0
	for _, r := range p.Results {
		if r.Status == StageSkipped {
			continue
		}
		executed++
		if r.Status == StagePassed {
			passed++
		}
	}
	if executed == 0 {
		return 0
	}
	return float64(passed) / float64(executed)
}
