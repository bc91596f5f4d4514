// File: internal/generator/contractgen.go
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/contract"
	"github.com/xkilldash9x/foundry-cli/internal/iterate"
	"github.com/xkilldash9x/foundry-cli/internal/llmclient"
)

const contractSystemPrompt = `You are a software architect. Turn the user's free-text service description
into a contract JSON document with "name", "definition" (entities with fields,
relations and API resources), "generation" (instructions, patterns, techStack)
and "validation" (assertions, testSpecs, staticRules, qualityGates,
securityChecks) layers. Every entity needs at least a "name"; every relation
target must be a declared entity. Respond with ONLY the JSON document.`

// ContractBuilder derives a validated Contract from a free-text description.
// It runs the same generate-validate-escalate-retry primitive as the FileSet
// loop, re-prompting with the validation issues until the contract is sound or
// the attempt budget runs out.
type ContractBuilder struct {
	client      schemas.LLMClient
	maxAttempts int
	logger      *zap.Logger
}

func NewContractBuilder(client schemas.LLMClient, maxAttempts int, logger *zap.Logger) *ContractBuilder {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ContractBuilder{client: client, maxAttempts: maxAttempts, logger: logger.Named("contractgen")}
}

// Build returns a Contract that passes structural validation. Without a
// client it falls straight through to the deterministic default.
func (b *ContractBuilder) Build(ctx context.Context, description string) (*schemas.Contract, error) {
	if b.client == nil {
		b.logger.Info("No LLM configured; using default contract")
		return DefaultContract(description), nil
	}

	var built *schemas.Contract
	_, attempts, problems, err := iterate.Loop(ctx, b.maxAttempts,
		func(ctx context.Context, attempt int, directive string, problems []iterate.Problem) (string, error) {
			raw, err := b.client.Generate(ctx, schemas.GenerationRequest{
				SystemPrompt: contractSystemPrompt,
				UserPrompt:   contractPrompt(description, directive, problems),
				Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
			})
			if err != nil {
				return "", fmt.Errorf("contract generation attempt %d: %w", attempt, err)
			}
			return raw, nil
		},
		func(raw string) []iterate.Problem {
			var c schemas.Contract
			if err := json.Unmarshal([]byte(llmclient.StripFences(raw)), &c); err != nil {
				return []iterate.Problem{{
					Path:    "document",
					Message: fmt.Sprintf("response was not valid JSON: %v; respond with only the JSON document", err),
					Code:    "INVALID_JSON",
				}}
			}
			issues := contract.Validate(&c)
			if len(issues) == 0 {
				built = &c
				return nil
			}
			b.logger.Warn("Derived contract failed validation", zap.Int("issues", len(issues)))
			out := make([]iterate.Problem, 0, len(issues))
			for _, issue := range issues {
				out = append(out, iterate.Problem{Path: issue.Path, Message: issue.Message, Code: "CONTRACT_INVALID"})
			}
			return out
		},
	)
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("no valid contract after %d attempts (last: %d issues)", attempts, len(problems))
	}

	b.logger.Info("Contract derived",
		zap.String("name", built.Name),
		zap.Int("attempts", attempts),
		zap.Int("entities", len(built.Definition.Entities)),
	)
	return built, nil
}

// contractPrompt rebuilds the user prompt for one attempt. Retries carry the
// escalation directive plus the concrete problems from the previous contract.
func contractPrompt(description, directive string, problems []iterate.Problem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SERVICE DESCRIPTION:\n%s\n", description)
	if directive != "" {
		fmt.Fprintf(&sb, "\n%s\n", directive)
	}
	if len(problems) > 0 {
		sb.WriteString("\nYour previous contract had these problems; fix all of them:\n")
		for _, p := range problems {
			fmt.Fprintf(&sb, "- %s: %s\n", p.Path, p.Message)
		}
	}
	return sb.String()
}

// DefaultContract is the minimal contract used when no model is available: a
// single Item entity with a named resource and the baseline validations.
func DefaultContract(description string) *schemas.Contract {
	name := "generated-service"
	if words := strings.Fields(description); len(words) > 0 {
		name = strings.ToLower(words[0]) + "-service"
	}
	return &schemas.Contract{
		Name: name,
		Definition: schemas.DefinitionLayer{
			Entities: []schemas.Entity{{
				Name: "Item",
				Fields: []schemas.Field{
					{Name: "name", Type: "string", Required: true},
				},
			}},
			Resources: []schemas.APIResource{{Entity: "Item", BasePath: "/items"}},
		},
		Generation: schemas.GenerationLayer{
			Instructions: []string{"expose CRUD endpoints for every entity", "answer 200 on GET /health"},
			TechStack:    schemas.TechStack{Language: "javascript", Framework: "express", Runtime: "node", PackageManager: "npm"},
		},
		Validation: schemas.ValidationLayer{
			Assertions: []schemas.Assertion{
				{ID: "health-route", Type: schemas.AssertFileContains, File: "src/index.js", Value: "/health"},
				{ID: "items-route", Type: schemas.AssertFileExists, File: "routes/items.js"},
				{ID: "error-handling", Type: schemas.AssertErrorHandling, File: "routes/items.js"},
			},
			TestSpecs: []schemas.TestSpec{
				{Name: "list items", Method: "GET", Path: "/items", ExpectStatus: 200, ExpectArray: true},
				{Name: "missing item answers 404", Method: "GET", Path: "/items/999", ExpectStatus: 404},
			},
		},
	}
}
