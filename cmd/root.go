// File: cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/internal/config"
	"github.com/xkilldash9x/foundry-cli/internal/observability"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	// cfg is populated by the persistent pre-run and shared by subcommands.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "foundry",
	Short:   "Foundry turns service contracts into running, self-correcting services.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			// Fall back to a sane logger so the error itself is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "foundry-cli"})
			return err
		}
		cfg = loaded
		cfg.SetVerbose(verbose)
		cfg.SetQuiet(quiet)

		lc := cfg.Logger()
		switch {
		case verbose:
			lc.Level = "debug"
		case quiet:
			lc.Level = "error"
		}
		observability.InitializeLogger(lc)

		observability.GetLogger().Info("Starting foundry", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "errors only")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
