package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhfrantz/travopt/internal/codec"
	"github.com/mhfrantz/travopt/internal/engine"
	"github.com/mhfrantz/travopt/internal/obslog"
	"github.com/mhfrantz/travopt/internal/pipeline"
)

var (
	applyOutPath string
	applyEngine  string
)

var applyCmd = &cobra.Command{
	Use:   "apply <pipeline.json>",
	Short: "Optimize a serialized pipeline and write the result",
	Long: `Reads a pipeline in its serialized form, runs the default
strategy catalog over it under the requested engine tag, and writes the
optimized, frozen pipeline back out.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyOutPath, "out", "o", "", "Output path (default: stdout)")
	applyCmd.Flags().StringVar(&applyEngine, "engine", "", "Engine tag: STANDARD or COMPUTER (default from config)")
}

func runApply(cmd *cobra.Command, args []string) error {
	timer := obslog.StartTimer(obslog.CategoryCLI, "apply")
	defer timer.Stop()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read pipeline file: %w", err)
	}

	p, err := codec.UnmarshalJSON(data)
	if err != nil {
		return fmt.Errorf("decode pipeline: %w", err)
	}

	tag, err := resolveEngineTag(applyEngine)
	if err != nil {
		return err
	}

	binding, err := engine.NewBinding(tag)
	if err != nil {
		return fmt.Errorf("build strategy binding: %w", err)
	}
	if err := binding.Apply(p); err != nil {
		logger.Error("apply failed", zap.Error(err))
		return fmt.Errorf("apply: %w", err)
	}

	out, err := codec.MarshalJSON(p)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}

	if applyOutPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(applyOutPath, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("pipeline optimized", zap.String("out", applyOutPath), zap.Int("steps", p.Len()))
	return nil
}

func resolveEngineTag(flag string) (pipeline.EngineTag, error) {
	value := flag
	if value == "" {
		value = cfg.EngineTag
	}
	switch value {
	case "", "STANDARD":
		return pipeline.StandardEngine, nil
	case "COMPUTER":
		return pipeline.ComputerEngine, nil
	default:
		return pipeline.StandardEngine, fmt.Errorf("unknown engine tag %q (want STANDARD or COMPUTER)", value)
	}
}
