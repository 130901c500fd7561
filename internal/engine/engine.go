// Package engine runs trace analyses: it wires a trace reader, a type
// comparator and a call stack tracker together and streams the resulting
// failures to a sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/phpconsistent/internal/config"
	"github.com/phobologic/phpconsistent/internal/model"
	"github.com/phobologic/phpconsistent/internal/sink"
	"github.com/phobologic/phpconsistent/internal/trace"
	"github.com/phobologic/phpconsistent/internal/tracker"
	"github.com/phobologic/phpconsistent/internal/typecheck"
)

// TraceExtension is appended to a trace path that does not exist as given.
const TraceExtension = ".xt"

// ErrSinkWrite wraps the first error a sink returned during an analysis.
var ErrSinkWrite = errors.New("writing failure to sink")

// Resolver supplies declared signatures and class hierarchies.
type Resolver interface {
	tracker.SignatureResolver
	typecheck.HierarchyResolver
}

// Stats combines reader and tracker counters of one analysis.
type Stats struct {
	Trace    trace.Stats
	Tracker  tracker.Stats
	Duration time.Duration
}

// Result is the outcome of analyzing one trace.
type Result struct {
	Source   string
	Failures []model.Failure
	Stats    Stats
	// Missing is set when the trace source could not be found.
	Missing bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where failures are delivered in addition to the Result.
func WithSink(s sink.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine analyzes traces with a fixed configuration. Each analysis has its
// own reader and tracker, so one Engine may run several concurrently.
type Engine struct {
	cfg      config.Config
	resolver Resolver
	sink     sink.Sink
	log      *zap.Logger
}

// New returns an engine. A nil resolver leaves every target unresolved.
func New(cfg config.Config, resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		resolver: resolver,
		sink:     sink.Nop{},
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) comparator() *typecheck.Comparator {
	cmp := &typecheck.Comparator{IgnoreNull: e.cfg.IgnoreNull}
	if e.resolver != nil {
		cmp.Hierarchy = e.resolver
	}
	return cmp
}

// Analyze reads one trace from r. Failures are returned in the order they
// were found and written to the sink as they occur. A sink error does not
// stop the analysis; the first one is returned wrapped in ErrSinkWrite
// together with the complete result.
func (e *Engine) Analyze(ctx context.Context, r io.Reader, source string) (Result, error) {
	start := time.Now()
	res := Result{Source: source}
	ctx = sink.WithRun(ctx, source)
	log := e.log.With(zap.String("source", source))

	var sinkErr error
	emit := func(f model.Failure) {
		res.Failures = append(res.Failures, f)
		if err := e.sink.Write(ctx, f); err != nil && sinkErr == nil {
			sinkErr = err
			log.Warn("sink write failed", zap.Error(err))
		}
	}

	var sigs tracker.SignatureResolver
	if e.resolver != nil {
		sigs = e.resolver
	}
	tr := tracker.New(sigs, e.comparator(), emit, tracker.WithLogger(log))
	rd := trace.NewReader(r, trace.Options{
		Depth:            e.cfg.Depth,
		IgnoredFiles:     e.cfg.IgnoredFilePatterns,
		IgnoredTargets:   e.cfg.IgnoredTargetPatterns,
		IgnoredFunctions: e.cfg.IgnoredFunctionPatterns,
		Logger:           log,
	})

	for rd.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tr.Handle(rd.Event())
	}
	tr.Finish()

	res.Stats = Stats{Trace: rd.Stats(), Tracker: tr.Stats(), Duration: time.Since(start)}
	if err := rd.Err(); err != nil {
		return res, fmt.Errorf("reading %s: %w", source, err)
	}

	log.Info("analyzed trace",
		zap.Int("events", res.Stats.Trace.Events),
		zap.Int("failures", len(res.Failures)),
		zap.Int("unresolved", res.Stats.Tracker.Unresolved),
		zap.Duration("took", res.Stats.Duration))

	if sinkErr != nil {
		return res, fmt.Errorf("%w: %w", ErrSinkWrite, sinkErr)
	}
	return res, nil
}

// AnalyzeFile analyzes the trace at path, or at path + ".xt" when path does
// not exist. When neither exists the result has Missing set and no error.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (Result, error) {
	resolved, ok := locate(path)
	if !ok {
		e.log.Warn("trace file not found", zap.String("path", path))
		return Result{Source: path, Missing: true}, nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return Result{Source: resolved}, fmt.Errorf("opening trace: %w", err)
	}
	res, err := e.Analyze(ctx, f, resolved)
	closeErr := f.Close()
	if err != nil && !errors.Is(err, ErrSinkWrite) {
		return res, err
	}

	if e.cfg.RemoveTrace && closeErr == nil {
		e.removeTraces(path)
	}
	return res, err
}

// removeTraces deletes path and its ".xt" sibling, whichever exist.
func (e *Engine) removeTraces(path string) {
	for _, candidate := range []string{path, path + TraceExtension} {
		if err := os.Remove(candidate); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.log.Warn("removing trace failed", zap.String("path", candidate), zap.Error(err))
		}
	}
}

func locate(path string) (string, bool) {
	for _, candidate := range []string{path, path + TraceExtension} {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return candidate, true // let Open report it
		}
	}
	return "", false
}

// AnalyzeFiles analyzes independent traces concurrently, at most
// cfg.Workers at a time. Results keep the order of paths. A read error
// cancels the remaining analyses; sink errors are joined and returned after
// every trace has been analyzed.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	sinkErrs := make([]error, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, p := range paths {
		g.Go(func() error {
			res, err := e.AnalyzeFile(ctx, p)
			results[i] = res
			if errors.Is(err, ErrSinkWrite) {
				sinkErrs[i] = err
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(sinkErrs...)
}
