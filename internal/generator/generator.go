// File: internal/generator/generator.go

// Package generator produces FileSets from Contracts. The LLM generator asks
// the model for a complete file manifest in one shot; the deterministic
// fallback emits a working express service straight from the contract's
// definition layer so the system functions with no backend at all.
package generator

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/llmclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New returns the LLM generator when a client is available, the fallback
// otherwise.
func New(client schemas.LLMClient, logger *zap.Logger) schemas.Generator {
	if client == nil {
		return NewFallback(logger)
	}
	return NewLLM(client, logger)
}

// LLM generates the FileSet by prompting a model with the full contract.
type LLM struct {
	client schemas.LLMClient
	logger *zap.Logger
}

func NewLLM(client schemas.LLMClient, logger *zap.Logger) *LLM {
	return &LLM{client: client, logger: logger.Named("generator")}
}

const generationSystemPrompt = `You are a senior software engineer generating a complete, runnable service
from a contract. Honor every instruction, pattern and constraint in the
generation layer, expose every declared API resource, and include a GET
/health endpoint that answers 200. Respond with ONLY a JSON array of objects,
each with "path", "content" and optional "target" fields. No fences, no
commentary.`

func (g *LLM) Generate(ctx context.Context, contract *schemas.Contract, trigger schemas.TriggerKind, extra string) (*schemas.FileSet, error) {
	contractJSON, err := json.MarshalIndent(contract, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling contract: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CONTRACT:\n%s\n", contractJSON)
	fmt.Fprintf(&sb, "\nTRIGGER: %s\n", trigger)
	if extra != "" {
		fmt.Fprintf(&sb, "\nADDITIONAL CONTEXT:\n%s\n", extra)
	}

	raw, err := g.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: generationSystemPrompt,
		UserPrompt:   sb.String(),
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	})
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}

	var files []schemas.FileSpec
	if err := json.Unmarshal([]byte(llmclient.StripFences(raw)), &files); err != nil {
		return nil, fmt.Errorf("model returned unparseable file manifest: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("model returned an empty file manifest")
	}

	fileSet, err := schemas.NewFileSet(files)
	if err != nil {
		return nil, fmt.Errorf("model manifest rejected: %w", err)
	}

	g.logger.Info("FileSet generated",
		zap.String("contract", contract.Name),
		zap.String("trigger", string(trigger)),
		zap.Int("files", len(files)),
		zap.Int("bytes", fileSet.TotalSize()),
	)
	return fileSet, nil
}
