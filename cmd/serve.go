// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/iterate"
	"github.com/xkilldash9x/foundry-cli/internal/monitor"
	"github.com/xkilldash9x/foundry-cli/internal/observability"
	"github.com/xkilldash9x/foundry-cli/internal/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Generate a service, run it, and keep it healthy until interrupted.",
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
		printReport(cmd, result)
		if !result.Passed {
			return fmt.Errorf("refusing to serve: validation did not pass after %d attempts", result.Attempts)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		service := runtime.NewService(cfg.Runtime(), logger)
		if err := service.Start(ctx, result.FileSet); err != nil {
			return fmt.Errorf("starting service: %w", err)
		}
		defer func() {
			if err := service.Stop(); err != nil {
				logger.Warn("Service shutdown reported an error", zap.Error(err))
			}
		}()

		history, err := monitor.NewHistory(cfg.Monitor().HistoryFile, logger)
		if err != nil {
			return err
		}

		ctrl, err := buildController(logger)
		if err != nil {
			return err
		}
		rem := &loopRemediator{ctrl: ctrl, contract: c, workDir: cfg.Runtime().OutputDir}

		status := service.Status()
		logger.Info("Service under supervision",
			zap.Int("pid", status.PID),
			zap.Int("port", status.Port),
		)
		return monitor.New(cfg.Monitor(), service, rem, history, result.FileSet, cfg.Runtime().OutputDir, logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&contractFile, "contract", "f", "", "path to a contract JSON file")
	serveCmd.Flags().StringVarP(&describeText, "describe", "d", "", "derive the contract from a free-text description")
	rootCmd.AddCommand(serveCmd)
}

// loopRemediator adapts the iteration loop to the monitor's Remediator: a
// remediation is a full regenerate-and-validate run seeded with the log
// excerpt that triggered it.
type loopRemediator struct {
	ctrl     *iterate.Controller
	contract *schemas.Contract
	workDir  string
}

func (r *loopRemediator) Remediate(ctx context.Context, trigger schemas.TriggerKind, logExcerpt string) (*schemas.FileSet, error) {
	result, err := r.ctrl.Run(ctx, r.contract, trigger, logExcerpt, r.workDir)
	if err != nil {
		return nil, err
	}
	if !result.Passed {
		return nil, fmt.Errorf("remediated FileSet failed validation after %d attempts", result.Attempts)
	}
	return result.FileSet, nil
}
