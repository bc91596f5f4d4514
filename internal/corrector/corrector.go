// File: internal/corrector/corrector.go

// Package corrector revises a FileSet to resolve the issues collected in
// Feedback. The LLM corrector makes targeted per-file edits at near-zero
// temperature; the heuristic corrector applies deterministic rewrites so the
// loop still converges offline.
package corrector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/llmclient"
)

// correctionTemperature keeps edits minimal. Higher values make the model
// rewrite files wholesale, which loses unrelated working code.
const correctionTemperature = 0.1

// New returns the LLM corrector when a client is available, the heuristic
// corrector otherwise.
func New(client schemas.LLMClient, logger *zap.Logger) schemas.Corrector {
	if client == nil {
		return NewHeuristic(logger)
	}
	return NewLLM(client, logger)
}

// LLM corrects files by prompting a model once per file to fix.
type LLM struct {
	client schemas.LLMClient
	logger *zap.Logger
}

func NewLLM(client schemas.LLMClient, logger *zap.Logger) *LLM {
	return &LLM{client: client, logger: logger.Named("corrector")}
}

const correctionSystemPrompt = `You are a senior software engineer fixing one file of a generated service.
You receive the file, the list of problems found in it, and relevant contract hints.
Rewrite the file so every listed problem is resolved. Change nothing that is not
required by a problem. Respond with ONLY the complete corrected file content,
no fences, no commentary.`

// Correct returns a new FileSet version with every file in FilesToFix revised.
// Files without issues pass through untouched.
func (c *LLM) Correct(ctx context.Context, fileSet *schemas.FileSet, fb *schemas.Feedback, contract *schemas.Contract) (*schemas.FileSet, error) {
	next := fileSet
	for _, path := range fb.FilesToFix {
		file, exists := fileSet.Resolve(path)
		if !exists {
			file = schemas.FileSpec{Path: path}
		}

		issues := fb.IssuesByFile[path]
		if len(issues) == 0 {
			issues = fb.IssuesByFile[file.Path]
		}
		prompt := c.buildPrompt(file, issues, fb.ContractHints, contract, exists)
		raw, err := c.client.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: correctionSystemPrompt,
			UserPrompt:   prompt,
			Options:      schemas.GenerationOptions{Temperature: correctionTemperature},
		})
		if err != nil {
			return nil, fmt.Errorf("correcting %s: %w", file.Path, err)
		}

		content := llmclient.StripFences(raw)
		if strings.TrimSpace(content) == "" {
			c.logger.Warn("Model returned empty correction; keeping original", zap.String("path", file.Path))
			continue
		}
		// Fence stripping drops the closing newline; source files keep one.
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		file.Content = content
		next = next.WithFile(file)
	}

	c.logger.Info("Correction pass complete",
		zap.Int("files_corrected", len(fb.FilesToFix)),
		zap.Int("fileset_version", next.Version),
	)
	return next, nil
}

func (c *LLM) buildPrompt(file schemas.FileSpec, issues []schemas.Issue, hints []schemas.Hint, contract *schemas.Contract, exists bool) string {
	var sb strings.Builder

	if exists {
		fmt.Fprintf(&sb, "FILE %s:\n%s\n\n", file.Path, file.Content)
	} else {
		fmt.Fprintf(&sb, "FILE %s does not exist yet. Create it.\n", file.Path)
		fmt.Fprintf(&sb, "Service: %s (%s/%s)\n\n", contract.Name,
			contract.Generation.TechStack.Language, contract.Generation.TechStack.Framework)
	}

	if len(issues) > 0 {
		sb.WriteString("PROBLEMS:\n")
		for _, issue := range issues {
			fmt.Fprintf(&sb, "- [%s] %s", issue.Severity, issue.Message)
			if issue.Line > 0 {
				fmt.Fprintf(&sb, " (line %d)", issue.Line)
			}
			if issue.Suggestion != "" {
				fmt.Fprintf(&sb, " -- %s", issue.Suggestion)
			}
			sb.WriteString("\n")
		}
	}

	if len(hints) > 0 {
		sb.WriteString("\nCONTRACT HINTS:\n")
		for _, h := range hints {
			fmt.Fprintf(&sb, "- %s: %s\n", h.ID, h.Text)
		}
	}
	return sb.String()
}
