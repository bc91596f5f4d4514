// File: internal/pipeline/quality.go
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// qualityStage computes code metrics over the FileSet and compares them to
// the contract's quality gates. Gates use the comparison operator declared in
// the contract; the measured value must satisfy "value <op> threshold".
type qualityStage struct{}

func (s *qualityStage) Name() schemas.StageName { return schemas.StageQuality }
func (s *qualityStage) Critical() bool          { return false }

func (s *qualityStage) Check(_ context.Context, in Input) Outcome {
	var out Outcome
	metrics := computeMetrics(in.FileSet)
	out.Metrics = metrics

	for _, gate := range in.Contract.Validation.QualityGates {
		value, ok := metrics[gate.Metric]
		if !ok {
			out.Warnings = append(out.Warnings, schemas.StageError{
				Message: fmt.Sprintf("quality gate references unknown metric %q", gate.Metric),
				Code:    schemas.CodeQualityGate,
			})
			continue
		}
		if !satisfies(value, gate.Operator, gate.Threshold) {
			out.Errors = append(out.Errors, schemas.StageError{
				Message: fmt.Sprintf("quality gate failed: %s is %.2f, required %s %.2f",
					gate.Metric, value, gate.Operator, gate.Threshold),
				Code: schemas.CodeQualityGate,
			})
		}
	}
	return out
}

func satisfies(value float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}

var (
	branchPattern  = regexp.MustCompile(`\b(if|else\s+if|for|while|case|catch)\b|\?\s*[^.:]|&&|\|\|`)
	typedPattern   = regexp.MustCompile(`:\s*(string|number|boolean|object|\w+\[\]|Record<|Array<|[A-Z]\w*)`)
	bindingPattern = regexp.MustCompile(`\b(const|let|var)\s+\w+|\bfunction\s+\w+\s*\(|\(\s*\w+[,)]`)
)

// computeMetrics derives loc, avg cyclomatic complexity per file, duplicate
// line ratio, and a type-annotation coverage estimate for TypeScript sources.
func computeMetrics(fs *schemas.FileSet) map[string]float64 {
	totalLines := 0
	totalBranches := 0
	scriptFiles := 0

	lineCounts := make(map[string]int)
	duplicates := 0

	typedBindings := 0
	totalBindings := 0
	tsFiles := 0

	for _, f := range fs.Files {
		if !isScriptFile(f.Path) {
			continue
		}
		scriptFiles++
		isTS := strings.HasSuffix(f.Path, ".ts") || strings.HasSuffix(f.Path, ".tsx")
		if isTS {
			tsFiles++
		}

		for _, raw := range strings.Split(f.Content, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "//") {
				continue
			}
			totalLines++
			totalBranches += len(branchPattern.FindAllString(line, -1))

			// Duplication counts non-trivial lines seen more than once.
			if len(line) > 20 {
				lineCounts[line]++
				if lineCounts[line] == 2 {
					duplicates += 2
				} else if lineCounts[line] > 2 {
					duplicates++
				}
			}

			if isTS {
				bindings := len(bindingPattern.FindAllString(line, -1))
				totalBindings += bindings
				if bindings > 0 && typedPattern.MatchString(line) {
					typedBindings += bindings
				}
			}
		}
	}

	metrics := map[string]float64{
		"loc":         float64(totalLines),
		"complexity":  0,
		"duplication": 0,
	}
	if scriptFiles > 0 {
		// Base complexity of 1 per file plus one per branch point.
		metrics["complexity"] = float64(totalBranches+scriptFiles) / float64(scriptFiles)
	}
	if totalLines > 0 {
		metrics["duplication"] = 100 * float64(duplicates) / float64(totalLines)
	}
	if tsFiles > 0 {
		if totalBindings > 0 {
			metrics["typeCoverage"] = 100 * float64(typedBindings) / float64(totalBindings)
		} else {
			metrics["typeCoverage"] = 100
		}
	}
	return metrics
}
