package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mhfrantz/travopt/internal/codec"
	"github.com/mhfrantz/travopt/internal/engine"
	"github.com/mhfrantz/travopt/internal/obslog"
	"github.com/mhfrantz/travopt/internal/pipeline"
)

var batchOutDir string

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Optimize every *.json pipeline in a directory concurrently",
	Long: `Applies the strategy catalog to every pipeline file in a
directory, bounded by the configured batch_concurrency, and overwrites
each file with its optimized pipeline (or writes it into --out-dir if
given). Pipelines
are independent: one file's failure does not stop the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "Directory for optimized output (default: overwrite in place)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	timer := obslog.StartTimer(obslog.CategoryCLI, "batch")
	defer timer.Stop()

	dir := args[0]
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		logger.Info("batch: no pipeline files found", zap.String("dir", dir))
		return nil
	}

	tag, err := resolveEngineTag(applyEngine)
	if err != nil {
		return err
	}

	// A plain Group (not WithContext) so one file's failure never cancels
	// the others: every file is independent and gets a chance to run.
	var g errgroup.Group
	g.SetLimit(cfg.BatchConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := batchOne(file, tag); err != nil {
				logger.Error("batch: pipeline failed", zap.String("file", file), zap.Error(err))
				return fmt.Errorf("%s: %w", file, err)
			}
			logger.Info("batch: pipeline optimized", zap.String("file", file))
			return nil
		})
	}

	return g.Wait()
}

func batchOne(path string, tag pipeline.EngineTag) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := codec.UnmarshalJSON(data)
	if err != nil {
		return err
	}

	binding, err := engine.NewBinding(tag)
	if err != nil {
		return err
	}
	if err := binding.Apply(p); err != nil {
		return err
	}

	out, err := codec.MarshalJSON(p)
	if err != nil {
		return err
	}

	dest := path
	if batchOutDir != "" {
		if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
			return err
		}
		dest = filepath.Join(batchOutDir, filepath.Base(path))
	}
	return os.WriteFile(dest, out, 0o644)
}
