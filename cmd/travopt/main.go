// Package main implements the travopt CLI: a command-line surface over
// the pipeline optimizer core.
//
// File index:
//   - main.go     - entry point, rootCmd, global flags, init()
//   - cmd_apply.go   - apply: construct/optimize/serialize a pipeline
//   - cmd_explain.go - explain: render a diagnostic trace as Markdown
//   - cmd_batch.go   - batch: bounded concurrent apply over many files
//   - cmd_watch.go   - watch: re-apply a pipeline file on change
//   - cmd_tui.go     - tui: interactive before/after pipeline viewer
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mhfrantz/travopt/internal/obslog"
	"github.com/mhfrantz/travopt/internal/travconfig"
)

var (
	verbose    bool
	configPath string

	cfg    *travconfig.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "travopt",
	Short: "travopt - a pipeline rewrite optimizer CLI",
	Long: `travopt applies the rewrite-rule catalog and strategy framework
to graph-traversal pipeline programs: construct, optimize, serialize,
and inspect them from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		loaded, err := travconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded

		level := obslog.LevelInfo
		if verbose || cfg.Logging.Level == "debug" {
			level = obslog.LevelDebug
		}
		if err := obslog.Initialize(cfg.Logging.Directory, level, cfg.Logging.Format == "json"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		obslog.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "travopt.yaml", "Path to the config file")

	rootCmd.AddCommand(
		applyCmd,
		explainCmd,
		batchCmd,
		watchCmd,
		tuiCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
