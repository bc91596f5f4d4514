// File: internal/contract/validate_test.go
package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

func validContract() *schemas.Contract {
	return &schemas.Contract{
		Name: "orders",
		Definition: schemas.DefinitionLayer{
			Entities: []schemas.Entity{
				{Name: "Order", Fields: []schemas.Field{{Name: "total", Type: "number"}},
					Relations: []schemas.Relation{{Name: "customer", Target: "Customer", Kind: "one-to-one"}}},
				{Name: "Customer", Fields: []schemas.Field{{Name: "email", Type: "string", Format: "email"}}},
			},
			Resources: []schemas.APIResource{{Entity: "Order", BasePath: "/orders"}},
		},
		Validation: schemas.ValidationLayer{
			Assertions: []schemas.Assertion{
				{ID: "a1", Type: schemas.AssertFileExists, File: "src/index.js"},
				{ID: "a2", Type: schemas.AssertErrorHandling, File: "src/index.js"},
			},
		},
	}
}

func TestValidateAcceptsWellFormedContract(t *testing.T) {
	assert.Empty(t, Validate(validContract()))
}

func TestValidateNilContract(t *testing.T) {
	issues := Validate(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "contract", issues[0].Path)
}

func TestValidateTagConstraints(t *testing.T) {
	c := validContract()
	c.Name = ""
	c.Definition.Entities = nil

	issues := Validate(c)
	require.NotEmpty(t, issues)

	paths := issuePaths(issues)
	assert.Contains(t, paths, "name")
	assert.Contains(t, paths, "definition.entities")
}

func TestValidateReferenceInvariants(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *schemas.Contract)
		wantPath string
		wantMsg  string
	}{
		{
			name: "duplicate entity name",
			mutate: func(c *schemas.Contract) {
				c.Definition.Entities = append(c.Definition.Entities, schemas.Entity{Name: "Order"})
			},
			wantPath: "definition.entities[2].name",
			wantMsg:  "duplicate entity name",
		},
		{
			name: "relation targets undeclared entity",
			mutate: func(c *schemas.Contract) {
				c.Definition.Entities[0].Relations[0].Target = "Warehouse"
			},
			wantPath: "definition.entities[0].relations[0].target",
			wantMsg:  "undeclared entity",
		},
		{
			name: "resource references undeclared entity",
			mutate: func(c *schemas.Contract) {
				c.Definition.Resources[0].Entity = "Invoice"
			},
			wantPath: "definition.resources[0].entity",
			wantMsg:  "undeclared entity",
		},
		{
			name: "duplicate assertion id",
			mutate: func(c *schemas.Contract) {
				c.Validation.Assertions[1].ID = "a1"
			},
			wantPath: "validation.assertions[1].id",
			wantMsg:  "duplicate assertion id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validContract()
			tc.mutate(c)

			issues := Validate(c)
			require.NotEmpty(t, issues)
			found := false
			for _, issue := range issues {
				if issue.Path == tc.wantPath {
					found = true
					assert.Contains(t, issue.Message, tc.wantMsg)
				}
			}
			assert.True(t, found, "no issue at %s in %v", tc.wantPath, issues)
		})
	}
}

func TestValidateBadQualityGateOperator(t *testing.T) {
	c := validContract()
	c.Validation.QualityGates = []schemas.QualityGate{{Metric: "complexity", Operator: "~", Threshold: 5}}

	issues := Validate(c)
	require.NotEmpty(t, issues)
	assert.Contains(t, issuePaths(issues), "validation.qualityGates[0].operator")
}

func issuePaths(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Path)
	}
	return out
}
