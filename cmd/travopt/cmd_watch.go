package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch <pipeline.json>",
	Short: "Re-apply a pipeline file every time it changes on disk",
	Long: `Watches a pipeline file and re-runs apply in place each time it
is written, debouncing rapid successive writes by watch_debounce. Runs
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	tag, err := resolveEngineTag(applyEngine)
	if err != nil {
		return err
	}

	logger.Info("watch: watching for changes", zap.String("file", path))

	debounce := cfg.WatchDebounceDuration()
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: fsnotify error", zap.Error(err))

		case <-fire:
			if err := batchOne(path, tag); err != nil {
				logger.Error("watch: apply failed", zap.String("file", path), zap.Error(err))
				fmt.Fprintf(os.Stderr, "apply failed: %v\n", err)
				continue
			}
			logger.Info("watch: pipeline re-optimized", zap.String("file", path))

		case <-cmd.Context().Done():
			return nil
		}
	}
}
