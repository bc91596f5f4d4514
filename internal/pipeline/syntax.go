// File: internal/pipeline/syntax.go
package pipeline

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// syntaxStage verifies that every file is structurally sound before any later
// stage tries to reason about content: delimiter balance per file, JSON
// parseability, and presence of every file a file-exists assertion demands.
type syntaxStage struct{}

func (s *syntaxStage) Name() schemas.StageName { return schemas.StageSyntax }
func (s *syntaxStage) Critical() bool          { return true }

func (s *syntaxStage) Check(ctx context.Context, in Input) Outcome {
	var out Outcome
	out.Metrics = map[string]float64{"files": float64(len(in.FileSet.Files))}

	for _, f := range in.FileSet.Files {
		switch {
		case strings.HasSuffix(f.Path, ".json"):
			if !json.Valid([]byte(f.Content)) {
				out.Errors = append(out.Errors, schemas.StageError{
					Message: "file is not valid JSON",
					File:    f.Path,
					Code:    schemas.CodeInvalidJSON,
				})
			}
		case isScriptFile(f.Path):
			out.Errors = append(out.Errors, checkScript(ctx, f)...)
		default:
			if e, ok := checkBalance(f.Path, f.Content); !ok {
				out.Errors = append(out.Errors, e)
			}
		}
	}

	// Required files come from the contract's file-exists assertions. Lookup
	// is tolerant of path prefixes and singular/plural variants.
	for _, a := range in.Contract.Validation.Assertions {
		if a.Type != schemas.AssertFileExists || a.File == "" {
			continue
		}
		if _, ok := in.FileSet.Resolve(a.File); !ok {
			out.Errors = append(out.Errors, schemas.StageError{
				Message: fmt.Sprintf("required file %q is missing", a.File),
				File:    a.File,
				Code:    schemas.CodeMissingFile,
			})
		}
	}

	return out
}

func isScriptFile(path string) bool {
	for _, ext := range []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// checkScript parses JavaScript-family sources with tree-sitter and falls
// back to the delimiter scanner for a line number when the grammar flags an
// error. TypeScript-only syntax is outside the JS grammar, so for .ts files
// the parse is advisory and only the balance scan can fail the file.
func checkScript(ctx context.Context, f schemas.FileSpec) []schemas.StageError {
	var errs []schemas.StageError

	balanceErr, balanced := checkBalance(f.Path, f.Content)
	if !balanced {
		errs = append(errs, balanceErr)
	}

	if strings.HasSuffix(f.Path, ".ts") || strings.HasSuffix(f.Path, ".tsx") {
		return errs
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, []byte(f.Content))
	if err != nil {
		// Parser failure (cancellation) is not a verdict on the file.
		return errs
	}
	defer tree.Close()

	if tree.RootNode().HasError() && balanced {
		errs = append(errs, schemas.StageError{
			Message: "file does not parse as JavaScript",
			File:    f.Path,
			Line:    firstErrorLine(tree.RootNode()),
			Code:    schemas.CodeUnbalanced,
		})
	}
	return errs
}

// firstErrorLine walks the tree for the first ERROR node.
func firstErrorLine(node *sitter.Node) int {
	if node.IsError() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if line := firstErrorLine(node.Child(i)); line > 0 {
			return line
		}
	}
	return 0
}

// checkBalance scans for unbalanced braces, parens, brackets and quotes,
// skipping string and comment interiors.
func checkBalance(path, content string) (schemas.StageError, bool) {
	type open struct {
		r    rune
		line int
	}
	var stack []open
	pairs := map[rune]rune{'}': '{', ')': '(', ']': '['}

	line := 1
	var inString rune // active quote character, 0 when outside strings
	var inLineComment, inBlockComment, escaped bool
	var prev rune

	for _, r := range content {
		if r == '\n' {
			line++
			inLineComment = false
			if inString == '\'' || inString == '"' {
				// Unterminated single-line string; tolerated here, the parse
				// check catches real breakage.
				inString = 0
			}
			prev = r
			continue
		}

		switch {
		case inLineComment:
		case inBlockComment:
			if prev == '*' && r == '/' {
				inBlockComment = false
			}
		case inString != 0:
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == inString {
				inString = 0
			}
		default:
			switch r {
			case '\'', '"', '`':
				inString = r
			case '/':
				if prev == '/' {
					inLineComment = true
				}
			case '*':
				if prev == '/' {
					inBlockComment = true
				}
			case '{', '(', '[':
				stack = append(stack, open{r: r, line: line})
			case '}', ')', ']':
				want := pairs[r]
				if len(stack) == 0 || stack[len(stack)-1].r != want {
					return schemas.StageError{
						Message: fmt.Sprintf("unbalanced %q", string(r)),
						File:    path,
						Line:    line,
						Code:    schemas.CodeUnbalanced,
					}, false
				}
				stack = stack[:len(stack)-1]
			}
		}
		prev = r
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return schemas.StageError{
			Message: fmt.Sprintf("unclosed %q", string(top.r)),
			File:    path,
			Line:    top.line,
			Code:    schemas.CodeUnbalanced,
		}, false
	}
	return schemas.StageError{}, true
}
