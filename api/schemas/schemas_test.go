package schemas

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileSetRejectsBadPaths(t *testing.T) {
	_, err := NewFileSet([]FileSpec{{Path: "", Content: "x"}})
	require.Error(t, err)

	_, err = NewFileSet([]FileSpec{
		{Path: "a.js", Content: "x"},
		{Path: "a.js", Content: "y"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate path")
}

func TestResolveToleratesPathVariants(t *testing.T) {
	fs, err := NewFileSet([]FileSpec{
		{Path: "api/src/routes/companies.ts", Content: "companies"},
		{Path: "api/src/models/user.ts", Content: "user"},
		{Path: "package.json", Content: "{}"},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		lookup  string
		want    string
		wantHit bool
	}{
		{"exact", "package.json", "{}", true},
		{"suffix", "routes/companies.ts", "companies", true},
		{"singular resolves to plural", "routes/company.ts", "companies", true},
		{"plural resolves to singular", "models/users.ts", "user", true},
		{"missing", "routes/orders.ts", "", false},
		{"suffix must align on separator", "ompanies.ts", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := fs.Resolve(tc.lookup)
			assert.Equal(t, tc.wantHit, ok)
			if tc.wantHit {
				assert.Equal(t, tc.want, f.Content)
			}
		})
	}
}

func TestWithFileVersionsImmutably(t *testing.T) {
	v1, err := NewFileSet([]FileSpec{{Path: "a.js", Content: "one"}})
	require.NoError(t, err)

	v2 := v1.WithFile(FileSpec{Path: "a.js", Content: "two"})
	v3 := v2.WithFile(FileSpec{Path: "b.js", Content: "new"})

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 3, v3.Version)

	orig, _ := v1.File("a.js")
	assert.Equal(t, "one", orig.Content)
	replaced, _ := v2.File("a.js")
	assert.Equal(t, "two", replaced.Content)
	assert.Equal(t, []string{"a.js", "b.js"}, v3.Paths())
}

func TestPipelineReportHelpers(t *testing.T) {
	report := &PipelineReport{Results: []StageResult{
		{Stage: StageSyntax, Status: StagePassed},
		{Stage: StageSchema, Status: StageFailed, Errors: []StageError{{Message: "bad", Code: CodeSchemaViolation}}},
		{Stage: StageAssertions, Status: StageSkipped},
		{Stage: StageStatic, Status: StageSkipped},
	}}

	failed := report.FailedStages()
	require.Len(t, failed, 1)
	assert.Equal(t, StageSchema, failed[0].Stage)

	assert.Len(t, report.AllErrors(), 1)

	// One of two executed stages passed; skipped stages are excluded.
	assert.Equal(t, 0.5, report.PassRate())

	r, ok := report.Result(StageAssertions)
	require.True(t, ok)
	assert.Equal(t, StageSkipped, r.Status)
	_, ok = report.Result(StageRuntime)
	assert.False(t, ok)
}

func TestSortIssuesOrdering(t *testing.T) {
	issues := []Issue{
		{File: "b.js", Line: 2, Severity: SeverityWarning, Message: "w"},
		{File: "b.js", Line: 9, Severity: SeverityCritical, Message: "c"},
		{File: "a.js", Line: 1, Severity: SeverityCritical, Message: "c2"},
		{File: "b.js", Line: 1, Severity: SeverityError, Message: "e"},
	}
	SortIssues(issues)

	want := []Issue{
		{File: "a.js", Line: 1, Severity: SeverityCritical, Message: "c2"},
		{File: "b.js", Line: 9, Severity: SeverityCritical, Message: "c"},
		{File: "b.js", Line: 1, Severity: SeverityError, Message: "e"},
		{File: "b.js", Line: 2, Severity: SeverityWarning, Message: "w"},
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestDefinitionLayerEntityLookup(t *testing.T) {
	d := DefinitionLayer{Entities: []Entity{{Name: "User"}, {Name: "Order"}}}
	e, ok := d.Entity("Order")
	require.True(t, ok)
	assert.Equal(t, "Order", e.Name)
	_, ok = d.Entity("Invoice")
	assert.False(t, ok)
}

func TestPatternsByID(t *testing.T) {
	g := GenerationLayer{Patterns: []Pattern{
		{ID: "error-handling", Description: "wrap in try/catch"},
		{ID: "pagination", Description: "limit/offset"},
	}}
	got := g.PatternsByID(map[string]struct{}{"pagination": {}})
	require.Len(t, got, 1)
	assert.Equal(t, "pagination", got[0].ID)
}
