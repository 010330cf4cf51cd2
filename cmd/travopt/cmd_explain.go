package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhfrantz/travopt/internal/codec"
	"github.com/mhfrantz/travopt/internal/engine"
	"github.com/mhfrantz/travopt/internal/obslog"
	"github.com/mhfrantz/travopt/internal/trace"
)

var explainPlain bool

var explainCmd = &cobra.Command{
	Use:   "explain <pipeline.json>",
	Short: "Apply a pipeline under tracing and render what fired or was skipped",
	Long: `Runs the strategy catalog over a pipeline exactly like apply, but
wraps every strategy with a diagnostic recorder first and renders the
resulting trace as Markdown: which rules fired, which declined to
match, and any configuration errors encountered along the way.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().BoolVar(&explainPlain, "plain", false, "Render as plain Markdown, no terminal styling")
}

func runExplain(cmd *cobra.Command, args []string) error {
	timer := obslog.StartTimer(obslog.CategoryCLI, "explain")
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

	store, err := trace.Open(cfg.TracePath)
	if err != nil {
		return fmt.Errorf("open trace store: %w", err)
	}
	defer store.Close()

	binding, err := engine.NewBinding(tag)
	if err != nil {
		return fmt.Errorf("build strategy binding: %w", err)
	}

	rec := trace.NewRecorder(store)
	instrumented, err := rec.Instrument(binding.Set)
	if err != nil {
		return fmt.Errorf("instrument strategy set: %w", err)
	}
	binding.Set = instrumented

	if err := binding.Apply(p); err != nil {
		logger.Error("explain apply failed", zap.Error(err))
		if events, qerr := store.EventsForTrace(rec.TraceID()); qerr == nil {
			fmt.Println(renderTraceMarkdown(rec.TraceID(), events))
		}
		return fmt.Errorf("apply: %w", err)
	}

	events, err := store.EventsForTrace(rec.TraceID())
	if err != nil {
		return fmt.Errorf("read trace events: %w", err)
	}

	md := renderTraceMarkdown(rec.TraceID(), events)
	if explainPlain {
		fmt.Println(md)
		return nil
	}

	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func renderTraceMarkdown(traceID string, events []trace.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Trace %s\n\n", traceID)
	fmt.Fprintf(&b, "| Strategy | Disposition | Engine | Reason |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	for _, ev := range events {
		reason := ev.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", ev.StrategyID, ev.Kind, ev.EngineTag, reason)
	}
	return b.String()
}
