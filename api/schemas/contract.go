package schemas

import "encoding/json"

// -- Contract Schemas --

// Contract is the layered specification describing what to build, how to build
// it, and how to judge the result. It is created once per generation request
// and is read-only afterwards.
type Contract struct {
	Name       string          `json:"name" validate:"required"`
	Version    string          `json:"version,omitempty"`
	Definition DefinitionLayer `json:"definition" validate:"required"`
	Generation GenerationLayer `json:"generation"`
	Validation ValidationLayer `json:"validation"`
}

// DefinitionLayer declares the domain model: entities with fields and
// relations, plus the API resources the generated service must expose.
type DefinitionLayer struct {
	Entities  []Entity      `json:"entities" validate:"required,min=1,dive"`
	Resources []APIResource `json:"resources" validate:"dive"`
}

// Entity is one domain object in the contract definition.
type Entity struct {
	Name      string     `json:"name" validate:"required"`
	Fields    []Field    `json:"fields" validate:"dive"`
	Relations []Relation `json:"relations,omitempty" validate:"dive"`
}

// Field describes a single attribute of an entity.
type Field struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Required bool   `json:"required,omitempty"`
	// Format names a semantic validation such as "email" or "url" that the
	// generated code is expected to enforce on input.
	Format string `json:"format,omitempty"`
}

// Relation links one entity to another declared entity.
type Relation struct {
	Name   string `json:"name" validate:"required"`
	Target string `json:"target" validate:"required"`
	// Kind is one of "one-to-one", "one-to-many" or "many-to-many".
	Kind string `json:"kind,omitempty"`
}

// APIResource maps an entity onto a REST surface of the generated service.
type APIResource struct {
	Entity     string   `json:"entity" validate:"required"`
	BasePath   string   `json:"basePath,omitempty"`
	Operations []string `json:"operations,omitempty"`
}

// GenerationLayer carries instructions and constraints for the generator.
type GenerationLayer struct {
	Instructions []string  `json:"instructions,omitempty"`
	Patterns     []Pattern `json:"patterns,omitempty" validate:"dive"`
	Constraints  []string  `json:"constraints,omitempty"`
	TechStack    TechStack `json:"techStack"`
}

// Pattern is a reusable generation hint. Its ID correlates with static rule
// and assertion identifiers so correction prompts can be scoped to the
// patterns relevant to a failure.
type Pattern struct {
	ID          string `json:"id" validate:"required"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
}

// TechStack names the target technology of the generated service.
type TechStack struct {
	Language       string `json:"language,omitempty"`
	Framework      string `json:"framework,omitempty"`
	Runtime        string `json:"runtime,omitempty"`
	PackageManager string `json:"packageManager,omitempty"`
}

// -- Validation Layer --

// AssertionType enumerates the mechanically checkable assertion kinds.
type AssertionType string

const (
	AssertFileExists      AssertionType = "file-exists"
	AssertFileContains    AssertionType = "file-contains"
	AssertFileNotContains AssertionType = "file-not-contains"
	AssertExportsFunction AssertionType = "exports-function"
	AssertExportsClass    AssertionType = "exports-class"
	AssertErrorHandling   AssertionType = "has-error-handling"
	AssertValidation      AssertionType = "has-validation"
)

// Assertion is one contract-declared check against the generated FileSet.
type Assertion struct {
	ID          string        `json:"id" validate:"required"`
	Type        AssertionType `json:"type" validate:"required"`
	File        string        `json:"file,omitempty"`
	Value       string        `json:"value,omitempty"`
	Description string        `json:"description,omitempty"`
}

// TestSpec is a Given/When/Then scenario the tests stage turns into an
// executable suite.
type TestSpec struct {
	Name         string `json:"name" validate:"required"`
	Given        string `json:"given,omitempty"`
	When         string `json:"when,omitempty"`
	Then         string `json:"then,omitempty"`
	Method       string `json:"method,omitempty"`
	Path         string `json:"path,omitempty"`
	ExpectStatus int    `json:"expectStatus,omitempty"`
	ExpectArray  bool   `json:"expectArray,omitempty"`
}

// StaticRule enables one static-analysis rule with a contract-chosen severity.
type StaticRule struct {
	Name     string `json:"name" validate:"required"`
	Severity string `json:"severity,omitempty"`
}

// QualityGate compares one computed metric against a threshold.
type QualityGate struct {
	Metric    string  `json:"metric" validate:"required"`
	Operator  string  `json:"operator" validate:"required,oneof=> >= < <= =="`
	Threshold float64 `json:"threshold"`
}

// SecurityCheck toggles one named security scan. The always-on scans run
// regardless of what the contract declares.
type SecurityCheck struct {
	Name    string `json:"name" validate:"required"`
	Enabled bool   `json:"enabled"`
}

// ValidationLayer declares everything the pipeline judges the FileSet by.
type ValidationLayer struct {
	Assertions         []Assertion                `json:"assertions,omitempty" validate:"dive"`
	TestSpecs          []TestSpec                 `json:"testSpecs,omitempty" validate:"dive"`
	StaticRules        []StaticRule               `json:"staticRules,omitempty" validate:"dive"`
	QualityGates       []QualityGate              `json:"qualityGates,omitempty" validate:"dive"`
	SecurityChecks     []SecurityCheck            `json:"securityChecks,omitempty" validate:"dive"`
	AcceptanceCriteria []string                   `json:"acceptanceCriteria,omitempty"`
	// Schemas maps a document name ("contract", "fileset") to the JSON Schema
	// it must conform to. The schema stage skips with a warning when empty.
	Schemas map[string]json.RawMessage `json:"schemas,omitempty"`
}

// Entity returns the declared entity with the given name, if any.
func (d DefinitionLayer) Entity(name string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// PatternsByID returns the generation patterns whose IDs appear in ids.
func (g GenerationLayer) PatternsByID(ids map[string]struct{}) []Pattern {
	var out []Pattern
	for _, p := range g.Patterns {
		if _, ok := ids[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}
