// File: internal/pipeline/schema.go
package pipeline

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// schemaStage validates the contract and the FileSet manifest against the
// JSON Schemas the contract carries. Absent schema definitions degrade to a
// skipped-with-warning pass instead of failing the run.
type schemaStage struct{}

func (s *schemaStage) Name() schemas.StageName { return schemas.StageSchema }
func (s *schemaStage) Critical() bool          { return true }

func (s *schemaStage) Check(_ context.Context, in Input) Outcome {
	var out Outcome

	defs := in.Contract.Validation.Schemas
	if len(defs) == 0 {
		out.Warnings = append(out.Warnings, schemas.StageError{
			Message: "no schema definitions in contract; schema validation skipped",
		})
		return out
	}

	if raw, ok := defs["contract"]; ok {
		out.Errors = append(out.Errors, validateDocument(raw, in.Contract, "contract")...)
	}
	if raw, ok := defs["fileset"]; ok {
		out.Errors = append(out.Errors, validateDocument(raw, manifestOf(in.FileSet), "fileset")...)
	}
	out.Metrics = map[string]float64{"schemas": float64(len(defs))}
	return out
}

// manifestEntry is the schema-visible shape of one file: path and target tag
// but not the content, which no schema should constrain.
type manifestEntry struct {
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
}

func manifestOf(fs *schemas.FileSet) []manifestEntry {
	manifest := make([]manifestEntry, 0, len(fs.Files))
	for _, f := range fs.Files {
		manifest = append(manifest, manifestEntry{Path: f.Path, Target: f.Target})
	}
	return manifest
}

func validateDocument(schemaJSON []byte, doc any, name string) []schemas.StageError {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		// A malformed schema is a contract configuration problem, reported
		// against the document name rather than aborting the run.
		return []schemas.StageError{{
			Message: fmt.Sprintf("schema for %q could not be applied: %v", name, err),
			Code:    schemas.CodeSchemaViolation,
		}}
	}
	if result.Valid() {
		return nil
	}

	errs := make([]schemas.StageError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, schemas.StageError{
			Message: fmt.Sprintf("%s: %s (%s)", name, re.Description(), re.Field()),
			Code:    schemas.CodeSchemaViolation,
		})
	}
	return errs
}
