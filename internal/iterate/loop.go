// File: internal/iterate/loop.go
package iterate

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Problem is one validation finding in the vocabulary shared by every
// generate-validate-retry loop, whether the candidate is a FileSet or a
// Contract. Path is a file path or an error path into a document.
type Problem struct {
	Path    string
	Line    int
	Message string
	Code    string
}

// Loop is the generic produce → validate → escalate → retry primitive. It
// calls produce with an attempt-scaled directive (empty on the first attempt),
// validates the candidate, and retries with the remaining problems until
// validate reports none or the budget runs out. Exhaustion is not an error:
// the caller gets the last candidate and its problems and decides.
func Loop[T any](
	ctx context.Context,
	maxAttempts int,
	produce func(ctx context.Context, attempt int, directive string, problems []Problem) (T, error),
	validate func(candidate T) []Problem,
) (T, int, []Problem, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var current T
	var problems []Problem
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return current, attempt - 1, problems, err
		}

		var directive string
		if attempt > 1 {
			directive = Directive(attempt, problems)
		}

		candidate, err := produce(ctx, attempt, directive, problems)
		if err != nil {
			return current, attempt, problems, err
		}
		current = candidate

		problems = validate(current)
		if len(problems) == 0 {
			return current, attempt, nil, nil
		}
	}
	return current, maxAttempts, problems, nil
}

// Directive returns the escalation text for the given attempt. Attempts one
// and two correct on general guidance, three and four call out the exact
// failing paths and error codes, five and later enumerate every remaining
// problem verbatim as the last chance. Broad feedback converges cheaply early
// but plateaus, so specificity is traded up as the budget runs low.
func Directive(attempt int, problems []Problem) string {
	switch {
	case attempt <= 2:
		return "Fix the listed problems. Keep unrelated code unchanged."

	case attempt <= 4:
		var paths []string
		seen := make(map[string]struct{})
		codes := make(map[string]struct{})
		for _, p := range problems {
			if p.Path != "" {
				if _, ok := seen[p.Path]; !ok {
					seen[p.Path] = struct{}{}
					paths = append(paths, p.Path)
				}
			}
			if p.Code != "" {
				codes[p.Code] = struct{}{}
			}
		}
		codeList := make([]string, 0, len(codes))
		for code := range codes {
			codeList = append(codeList, code)
		}
		sort.Strings(codeList)
		return fmt.Sprintf(
			"Previous corrections did not resolve the failures. Concentrate ONLY on these paths: %s. Error classes still present: %s.",
			strings.Join(paths, ", "), strings.Join(codeList, ", "))

	default:
		var sb strings.Builder
		sb.WriteString("LAST CHANCE. Every remaining problem is enumerated below; resolve each one exactly as stated:\n")
		for _, p := range problems {
			if p.Message == "" {
				continue
			}
			fmt.Fprintf(&sb, "- %s", p.Message)
			if p.Path != "" {
				fmt.Fprintf(&sb, " [%s", p.Path)
				if p.Line > 0 {
					fmt.Fprintf(&sb, ":%d", p.Line)
				}
				sb.WriteString("]")
			}
			sb.WriteString("\n")
		}
		return sb.String()
	}
}
