// Package session scopes trace capture around a unit of work and analyzes
// the captured trace once the work ends.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/phobologic/phpconsistent/internal/engine"
)

// Capture controls an external trace recorder. Stop returns the path of the
// trace it produced.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
}

// Analyzer checks a trace file. *engine.Engine satisfies it.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (engine.Result, error)
}

// PanicError carries a panic raised by the monitored work.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("monitored work panicked: %v", e.Value)
}

// Monitor starts capture before fn runs. However fn ends (normally, with an
// error or by panicking) the capture is stopped and then the trace is
// analyzed. Errors from every stage are joined. A panic in fn is returned as
// a *PanicError rather than re-raised.
func Monitor(ctx context.Context, capture Capture, analyzer Analyzer, fn func(context.Context) error) (engine.Result, error) {
	if err := capture.Start(ctx); err != nil {
		return engine.Result{}, fmt.Errorf("starting capture: %w", err)
	}

	workErr := runProtected(ctx, fn)

	path, stopErr := capture.Stop(ctx)
	if stopErr != nil {
		return engine.Result{}, errors.Join(workErr, fmt.Errorf("stopping capture: %w", stopErr))
	}

	res, analyzeErr := analyzer.AnalyzeFile(ctx, path)
	if analyzeErr != nil {
		analyzeErr = fmt.Errorf("analyzing %s: %w", path, analyzeErr)
	}
	return res, errors.Join(workErr, analyzeErr)
}

func runProtected(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}
