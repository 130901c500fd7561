// Package tracker pairs trace calls with their returns and checks them
// against declared signatures.
package tracker

import (
	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/model"
	"github.com/phobologic/phpconsistent/internal/typecheck"
)

// SignatureResolver supplies the declared signature of a call target.
// Resolve reports false for targets it cannot describe, such as built-ins.
type SignatureResolver interface {
	Resolve(targetID string) (model.Signature, bool)
}

// Stats counts tracker decisions that do not produce failures.
type Stats struct {
	Calls        int
	Returns      int
	Unresolved   int
	Suppressed   int
	Orphans      int
	NoValue      int
	EmptyStack   int
	Unterminated int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// Tracker is the call/return state machine for a single analysis run.
// It is not safe for concurrent use.
type Tracker struct {
	resolver SignatureResolver
	cmp      *typecheck.Comparator
	emit     func(model.Failure)
	log      *zap.Logger

	stack []model.CallFrame
	stats Stats
}

// New returns a tracker that reports failures to emit, in stream order.
func New(resolver SignatureResolver, cmp *typecheck.Comparator, emit func(model.Failure), opts ...Option) *Tracker {
	if cmp == nil {
		cmp = &typecheck.Comparator{}
	}
	t := &Tracker{
		resolver: resolver,
		cmp:      cmp,
		emit:     emit,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Handle advances the state machine by one event.
func (t *Tracker) Handle(ev model.TraceEvent) {
	switch ev.Kind {
	case model.Call:
		t.call(ev)
	case model.Return:
		t.ret(ev)
	}
}

// Depth returns the number of pending frames.
func (t *Tracker) Depth() int {
	return len(t.stack)
}

// Stats returns the counters accumulated so far.
func (t *Tracker) Stats() Stats {
	return t.stats
}

// Finish discards frames left open at the end of the stream.
func (t *Tracker) Finish() {
	if n := len(t.stack); n > 0 {
		t.stats.Unterminated += n
		t.log.Debug("discarding unterminated calls", zap.Int("frames", n))
		t.stack = t.stack[:0]
	}
}

func (t *Tracker) call(ev model.TraceEvent) {
	t.stats.Calls++
	frame := model.CallFrame{TargetID: ev.TargetID, File: ev.File, Line: ev.Line}

	var sig model.Signature
	ok := false
	if t.resolver != nil {
		sig, ok = t.resolver.Resolve(ev.TargetID)
	}
	if !ok {
		t.stats.Unresolved++
		t.log.Debug("unresolvable call target", zap.String("target", ev.TargetID))
		frame.Suppressed = true
		t.stack = append(t.stack, frame)
		return
	}
	if sig.Suppressed {
		t.stats.Suppressed++
		frame.Suppressed = true
		t.stack = append(t.stack, frame)
		return
	}

	t.checkParams(ev, sig)

	if sig.HasReturn {
		frame.ExpectedReturn = sig.Return
		frame.HasReturn = true
	}
	t.stack = append(t.stack, frame)
}

func (t *Tracker) checkParams(ev model.TraceEvent, sig model.Signature) {
	if len(ev.Tokens) != len(sig.Params) {
		t.emit(model.Failure{
			Kind:          model.CountMismatch,
			File:          ev.File,
			Line:          ev.Line,
			Target:        ev.TargetID,
			DeclaredCount: len(sig.Params),
			ObservedCount: len(ev.Tokens),
		})
	}

	for i, p := range sig.Params {
		if i >= len(ev.Tokens) {
			break
		}
		if i < len(sig.DefinedParams) && p.Name != sig.DefinedParams[i] {
			t.emit(model.Failure{
				Kind:     model.NameMismatch,
				File:     ev.File,
				Line:     ev.Line,
				Target:   ev.TargetID,
				Position: i + 1,
				Expected: p.Name,
				Observed: sig.DefinedParams[i],
			})
		}
	}

	for i, p := range sig.Params {
		if i >= len(ev.Tokens) {
			break
		}
		observed := typecheck.Normalize(ev.Tokens[i])
		if t.cmp.Matches(observed, p.Type) {
			continue
		}
		t.emit(model.Failure{
			Kind:      model.TypeMismatch,
			File:      ev.File,
			Line:      ev.Line,
			Target:    ev.TargetID,
			Position:  i + 1,
			ParamName: p.Name,
			Expected:  string(p.Type),
			Observed:  observed,
		})
	}
}

func (t *Tracker) ret(ev model.TraceEvent) {
	if ev.Orphan {
		t.stats.Orphans++
		t.log.Debug("return of an ignored call", zap.Int("depth", ev.Depth))
		return
	}
	literal, ok := ev.ReturnLiteral()
	if !ok {
		t.stats.NoValue++
		return
	}
	if len(t.stack) == 0 {
		t.stats.EmptyStack++
		return
	}

	t.stats.Returns++
	frame := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	if frame.Suppressed || !frame.HasReturn {
		return
	}

	observed := ReturnType(literal)
	if t.cmp.Matches(observed, frame.ExpectedReturn) {
		return
	}
	t.emit(model.Failure{
		Kind:     model.TypeMismatch,
		File:     frame.File,
		Line:     frame.Line,
		Target:   frame.TargetID,
		Expected: string(frame.ExpectedReturn),
		Observed: observed,
	})
}
