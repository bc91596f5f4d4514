// File: internal/contract/validate.go

// Package contract performs structural validation of a Contract: struct-level
// constraints plus the cross-reference invariants that tags cannot express.
// Issues cite the exact path of the offending element so correction prompts
// can quote them back to the generator.
package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// Issue is one structural problem found in a contract.
type Issue struct {
	// Path locates the offending element, e.g.
	// "definition.entities[1].relations[0].target".
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s", i.Path, i.Message) }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a contract against its structural invariants. A nil return
// means the contract is well formed.
func Validate(c *schemas.Contract) []Issue {
	if c == nil {
		return []Issue{{Path: "contract", Message: "contract is nil"}}
	}

	var issues []Issue
	issues = append(issues, tagIssues(c)...)
	issues = append(issues, referenceIssues(c)...)
	return issues
}

// tagIssues runs the declarative struct-tag constraints.
func tagIssues(c *schemas.Contract) []Issue {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Path: "contract", Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{
			Path:    normalizeNamespace(fe.Namespace()),
			Message: fmt.Sprintf("failed %q constraint (value: %v)", fe.Tag(), fe.Value()),
		})
	}
	return issues
}

// referenceIssues enforces the cross-reference invariants: entity names are
// unique, every relation target and API-resource entity names a declared
// entity, and assertion ids are unique.
func referenceIssues(c *schemas.Contract) []Issue {
	var issues []Issue

	declared := make(map[string]struct{}, len(c.Definition.Entities))
	for i, e := range c.Definition.Entities {
		if _, dup := declared[e.Name]; dup {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("definition.entities[%d].name", i),
				Message: fmt.Sprintf("duplicate entity name %q", e.Name),
			})
			continue
		}
		if e.Name != "" {
			declared[e.Name] = struct{}{}
		}
	}

	for i, e := range c.Definition.Entities {
		for j, r := range e.Relations {
			if _, ok := declared[r.Target]; !ok {
				issues = append(issues, Issue{
					Path:    fmt.Sprintf("definition.entities[%d].relations[%d].target", i, j),
					Message: fmt.Sprintf("relation %q targets undeclared entity %q", r.Name, r.Target),
				})
			}
		}
	}

	for i, res := range c.Definition.Resources {
		if _, ok := declared[res.Entity]; !ok {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("definition.resources[%d].entity", i),
				Message: fmt.Sprintf("API resource references undeclared entity %q", res.Entity),
			})
		}
	}

	seenIDs := make(map[string]struct{}, len(c.Validation.Assertions))
	for i, a := range c.Validation.Assertions {
		if _, dup := seenIDs[a.ID]; dup {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("validation.assertions[%d].id", i),
				Message: fmt.Sprintf("duplicate assertion id %q", a.ID),
			})
			continue
		}
		if a.ID != "" {
			seenIDs[a.ID] = struct{}{}
		}
	}

	return issues
}

// normalizeNamespace converts validator namespaces ("Contract.Definition.
// Entities[0].Name") to the JSON-ish form used in correction prompts.
func normalizeNamespace(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:] // Drop the root struct name.
	}
	for i, p := range parts {
		idx := ""
		if b := strings.IndexByte(p, '['); b >= 0 {
			idx = p[b:]
			p = p[:b]
		}
		parts[i] = lowerFirst(p) + idx
	}
	return strings.Join(parts, ".")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
