package schemas

import "sort"

// -- Feedback Schemas --

// Severity ranks how urgent an Issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityError:    1,
	SeverityWarning:  2,
}

// Issue is one actionable problem derived from a failed check, attached to a
// file and optionally a line.
type Issue struct {
	File       string   `json:"file"`
	Line       int      `json:"line,omitempty"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// Hint is a generation-layer pattern or instruction matched to a failing rule
// so the correction prompt stays scoped.
type Hint struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// Feedback is the Corrector's work order for one failed pipeline run.
type Feedback struct {
	// IssuesByFile groups Issues per file path, each group sorted by severity.
	IssuesByFile map[string][]Issue `json:"issuesByFile"`
	// FilesToFix lists every path needing correction, including paths named by
	// failing file-exists assertions that are absent from the current FileSet.
	FilesToFix []string `json:"filesToFix"`
	// ContractHints are the generation patterns relevant to the failures.
	ContractHints []Hint `json:"contractHints,omitempty"`
}

// SortIssues orders issues by severity, then file, then line.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if severityRank[issues[i].Severity] != severityRank[issues[j].Severity] {
			return severityRank[issues[i].Severity] < severityRank[issues[j].Severity]
		}
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		return issues[i].Line < issues[j].Line
	})
}

// TotalIssues counts every issue across all files.
func (f *Feedback) TotalIssues() int {
	n := 0
	for _, issues := range f.IssuesByFile {
		n += len(issues)
	}
	return n
}
