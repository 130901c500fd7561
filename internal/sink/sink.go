// Package sink delivers failures to their configured destination.
package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/phobologic/phpconsistent/internal/config"
	"github.com/phobologic/phpconsistent/internal/model"
)

// Sink receives failures as they are found. Implementations must be safe
// for concurrent use because independent analyses may share one sink.
type Sink interface {
	Write(ctx context.Context, f model.Failure) error
	Close() error
}

// Run identifies one analysis. Sinks that group failures read it from the
// context passed to Write.
type Run struct {
	ID     string
	Source string
}

type runKey struct{}

// WithRun returns a context carrying a fresh run id for source.
func WithRun(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, runKey{}, Run{ID: uuid.NewString(), Source: source})
}

// RunFrom returns the run stored by WithRun.
func RunFrom(ctx context.Context) (Run, bool) {
	r, ok := ctx.Value(runKey{}).(Run)
	return r, ok
}

// Nop discards every failure.
type Nop struct{}

func (Nop) Write(context.Context, model.Failure) error { return nil }
func (Nop) Close() error { return nil }

// Func adapts a function to a Sink.
type Func func(ctx context.Context, f model.Failure) error

func (fn Func) Write(ctx context.Context, f model.Failure) error { return fn(ctx, f) }
func (Func) Close() error { return nil }

// Open returns the sink selected by cfg.LogSink. Console output goes to w.
func Open(cfg config.Config, w io.Writer) (Sink, error) {
	switch cfg.LogSink {
	case config.SinkNone, "":
		return Nop{}, nil
	case config.SinkFile:
		s, err := NewFile(cfg.LogLocation)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkConsole:
		return NewConsole(w), nil
	case config.SinkSQLite:
		s, err := NewSQLite(cfg.LogLocation)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown log_sink %q", config.ErrInvalid, cfg.LogSink)
}
