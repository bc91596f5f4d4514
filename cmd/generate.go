// File: cmd/generate.go
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/contract"
	"github.com/xkilldash9x/foundry-cli/internal/corrector"
	"github.com/xkilldash9x/foundry-cli/internal/feedback"
	"github.com/xkilldash9x/foundry-cli/internal/generator"
	"github.com/xkilldash9x/foundry-cli/internal/iterate"
	"github.com/xkilldash9x/foundry-cli/internal/llmclient"
	"github.com/xkilldash9x/foundry-cli/internal/observability"
	"github.com/xkilldash9x/foundry-cli/internal/pipeline"
	"github.com/xkilldash9x/foundry-cli/internal/runtime"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	contractFile string
	describeText string
	outputDir    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a service from a contract and validate it until it passes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		c, err := resolveContract(cmd, logger)
		if err != nil {
			return err
		}

		result, err := runIteration(cmd, c, schemas.TriggerInitial, "")
		if err != nil {
			return err
		}

		dir := outputDir
		if dir == "" {
			dir = cfg.Runtime().OutputDir
		}
		if err := runtime.WriteFileSet(dir, result.FileSet); err != nil {
			return fmt.Errorf("writing generated files: %w", err)
		}

		printReport(cmd, result)
		if !result.Passed {
			return fmt.Errorf("validation did not pass after %d attempts", result.Attempts)
		}
		logger.Info("Generation complete",
			zap.String("output_dir", dir),
			zap.Int("files", len(result.FileSet.Files)),
		)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&contractFile, "contract", "f", "", "path to a contract JSON file")
	generateCmd.Flags().StringVarP(&describeText, "describe", "d", "", "derive the contract from a free-text description")
	generateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (defaults to runtime.output_dir)")
	rootCmd.AddCommand(generateCmd)
}

// resolveContract loads the contract from --contract, derives one from
// --describe, or fails when neither was given.
func resolveContract(cmd *cobra.Command, logger *zap.Logger) (*schemas.Contract, error) {
	switch {
	case contractFile != "":
		data, err := os.ReadFile(contractFile)
		if err != nil {
			return nil, fmt.Errorf("reading contract: %w", err)
		}
		var c schemas.Contract
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing contract %s: %w", contractFile, err)
		}
		if issues := contract.Validate(&c); len(issues) > 0 {
			var sb strings.Builder
			for _, issue := range issues {
				fmt.Fprintf(&sb, "\n  %s: %s", issue.Path, issue.Message)
			}
			return nil, fmt.Errorf("contract %s is invalid:%s", contractFile, sb.String())
		}
		return &c, nil

	case describeText != "":
		client, err := llmclient.NewFromConfig(cfg.LLM(), logger)
		if err != nil {
			return nil, err
		}
		builder := generator.NewContractBuilder(client, cfg.Generator().MaxAttempts, logger)
		return builder.Build(cmd.Context(), describeText)

	default:
		return nil, fmt.Errorf("either --contract or --describe is required")
	}
}

// buildController wires the full generate/validate/correct loop from config.
func buildController(logger *zap.Logger) (*iterate.Controller, error) {
	client, err := llmclient.NewFromConfig(cfg.LLM(), logger)
	if err != nil {
		return nil, err
	}
	if cfg.Generator().OfflineFallback {
		client = nil
	}

	ctrl := iterate.NewController(
		generator.New(client, logger),
		pipeline.New(cfg.Pipeline(), logger),
		feedback.NewBuilder(logger),
		corrector.New(client, logger),
		cfg.Generator().MaxAttempts,
		logger,
	)
	if client != nil {
		// With no client the primary generator already is the deterministic
		// one; otherwise it backstops an exhausted LLM loop.
		ctrl.WithFallback(generator.NewFallback(logger))
	}
	return ctrl, nil
}

func runIteration(cmd *cobra.Command, c *schemas.Contract, trigger schemas.TriggerKind, extra string) (*iterate.Result, error) {
	logger := observability.GetLogger()
	ctrl, err := buildController(logger)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "foundry-work-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	return ctrl.Run(cmd.Context(), c, trigger, extra, workDir)
}

func printReport(cmd *cobra.Command, result *iterate.Result) {
	cmd.Printf("attempts: %d  passed: %t  est. tokens: %d  elapsed: %s\n",
		result.Attempts, result.Passed, result.EstimatedTokens, result.Elapsed.Round(time.Millisecond))
	for _, r := range result.Report.Results {
		cmd.Printf("  %-16s %s", r.Stage, r.Status)
		if len(r.Errors) > 0 {
			cmd.Printf("  (%d errors)", len(r.Errors))
		}
		if len(r.Warnings) > 0 {
			cmd.Printf("  (%d warnings)", len(r.Warnings))
		}
		cmd.Println()
	}
	for _, e := range result.Report.AllErrors() {
		if e.File != "" {
			cmd.Printf("  - %s:%d %s\n", e.File, e.Line, e.Message)
		} else {
			cmd.Printf("  - %s\n", e.Message)
		}
	}
}
