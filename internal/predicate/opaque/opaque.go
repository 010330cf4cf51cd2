// Package opaque provides the external collaborator that evaluates
// OpOpaque predicates: a user-opaque predicate whose
// internals the optimizer core never inspects or pattern-matches.
// Evaluation happens outside the rewrite rules entirely, on demand of
// the executor.
package opaque

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/mhfrantz/travopt/internal/value"
)

// allowedPackages is the stdlib import whitelist for opaque predicate
// scripts: no filesystem, network, or process access.
var allowedPackages = map[string]bool{
	"strings": true, "strconv": true, "fmt": true, "math": true,
	"regexp": true, "time": true, "sort": true, "unicode": true,
}

// Evaluator registers and runs opaque predicate scripts by handle. Each
// script must define:
//
//	func Evaluate(v string) (bool, error)
//
// where v is the string form of the candidate value (value.Value.String).
type Evaluator struct {
	mu      sync.RWMutex
	scripts map[string]string
	timeout time.Duration
}

// NewEvaluator constructs an Evaluator with the given per-call timeout.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Evaluator{scripts: make(map[string]string), timeout: timeout}
}

// Register associates handle (an OpOpaque predicate's OpaqueID) with a
// Go source script. Registration is separate from construction so a
// pipeline built with opaque predicates can be optimized before any
// script is available.
func (e *Evaluator) Register(handle, source string) error {
	if err := validateImports(source); err != nil {
		return fmt.Errorf("opaque: invalid script %q: %w", handle, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[handle] = source
	return nil
}

// Evaluate runs the script registered under handle against v. It never
// consults or reports the predicate's structural placement in a
// pipeline: that boundary is maintained by the rewrite rules never
// calling this package at all.
func (e *Evaluator) Evaluate(ctx context.Context, handle string, v value.Value) (bool, error) {
	e.mu.RLock()
	source, ok := e.scripts[handle]
	e.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("opaque: no script registered for handle %q", handle)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return false, fmt.Errorf("opaque: load stdlib: %w", err)
	}

	if _, err := i.Eval(wrapScript(source)); err != nil {
		return false, fmt.Errorf("opaque: script %q evaluation failed: %w", handle, err)
	}
	fn, err := i.Eval("main.Evaluate")
	if err != nil {
		return false, fmt.Errorf("opaque: script %q missing Evaluate: %w", handle, err)
	}
	evalFn, ok := fn.Interface().(func(string) (bool, error))
	if !ok {
		return false, fmt.Errorf("opaque: script %q has wrong Evaluate signature", handle)
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := evalFn(v.String())
		done <- result{ok, err}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-runCtx.Done():
		return false, fmt.Errorf("opaque: script %q timed out: %w", handle, runCtx.Err())
	}
}

func wrapScript(source string) string {
	if strings.Contains(source, "package main") {
		return source
	}
	return "package main\n\n" + source
}

func validateImports(source string) error {
	inBlock := false
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !allowedPackages[pkg] {
				return fmt.Errorf("forbidden import %q", pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !allowedPackages[pkg] {
				return fmt.Errorf("forbidden import %q", pkg)
			}
		}
	}
	return nil
}
