// Package trace reads Xdebug computerized traces into normalized call and return events.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/model"
)

// Positional fields of a computerized trace record.
const (
	fieldLevel       = 0
	fieldKind        = 2
	fieldTarget      = 5
	fieldUserDefined = 6
	fieldInclude     = 7
	fieldFile        = 8
	fieldLine        = 9
	fieldTail        = 11
)

// Options bound and filter what the reader emits.
type Options struct {
	// Depth is the number of nesting levels below the entry point to analyze.
	Depth int

	IgnoredFiles     []string
	IgnoredTargets   []string
	IgnoredFunctions []string

	Logger *zap.Logger
}

// Stats counts what the reader saw but did not emit.
type Stats struct {
	Lines     int
	Events    int
	TooDeep   int
	Malformed int
	Ignored   int
}

// Reader is a forward-only iterator over the events of one trace.
// It is not safe for concurrent use.
type Reader struct {
	br   *bufio.Reader
	opts Options
	log  *zap.Logger

	started  bool
	minLevel int
	done     bool
	err      error
	event    model.TraceEvent
	stats    Stats

	// ignoredLevels holds the levels of filtered calls whose return is pending.
	ignoredLevels []int
}

// NewReader returns a reader over r.
func NewReader(r io.Reader, opts Options) *Reader {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{br: bufio.NewReader(r), opts: opts, log: log}
}

// Next advances to the next event. It returns false at the end of the trace
// or after a read error.
func (r *Reader) Next() bool {
	for !r.done {
		line, err := r.readLine()
		if err != nil {
			r.done = true
			if !errors.Is(err, io.EOF) {
				r.err = fmt.Errorf("reading trace: %w", err)
			}
			if line == "" {
				return false
			}
		}
		r.stats.Lines++

		fields := strings.Split(line, "\t")
		level, numeric := parseLevel(fields[fieldLevel])

		if !r.started {
			if numeric {
				r.started = true
				r.minLevel = level
			}
			continue
		}
		if !numeric {
			r.done = true
			return false
		}
		if level > r.minLevel+r.opts.Depth {
			r.stats.TooDeep++
			continue
		}

		ev, ok := r.decode(level, fields)
		if !ok {
			r.stats.Malformed++
			r.log.Debug("skipping malformed trace line", zap.Int("line", r.stats.Lines))
			continue
		}
		if !r.accept(&ev) {
			r.stats.Ignored++
			continue
		}
		r.event = ev
		r.stats.Events++
		return true
	}
	return false
}

// Event returns the event produced by the last successful call to Next.
func (r *Reader) Event() model.TraceEvent {
	return r.event
}

// Err returns the first non-EOF read error.
func (r *Reader) Err() error {
	return r.err
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	return line, err
}

func parseLevel(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Reader) decode(level int, fields []string) (model.TraceEvent, bool) {
	if len(fields) <= fieldKind {
		return model.TraceEvent{}, false
	}
	ev := model.TraceEvent{Depth: level}

	switch strings.TrimSpace(fields[fieldKind]) {
	case "0":
		ev.Kind = model.Call
		if len(fields) <= fieldTarget || fields[fieldTarget] == "" {
			return model.TraceEvent{}, false
		}
		ev.TargetID = fields[fieldTarget]
		ev.UserDefined = field(fields, fieldUserDefined) == "1"
		ev.IncludeFile = field(fields, fieldInclude)
		ev.File = field(fields, fieldFile)
		ev.Line, _ = strconv.Atoi(field(fields, fieldLine))
		if len(fields) > fieldTail {
			ev.Tokens = append([]string(nil), fields[fieldTail:]...)
		}
	case "1", "R":
		ev.Kind = model.Return
		switch {
		case len(fields) > fieldTail:
			ev.Tokens = []string{fields[fieldTail]}
		case len(fields) > fieldTarget && fields[fieldTarget] != "":
			ev.Tokens = []string{fields[fieldTarget]}
		}
	default:
		return model.TraceEvent{}, false
	}
	return ev, true
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// accept applies the ignore filters. A filtered call is dropped and its level
// remembered so the return closing it can be marked as an orphan.
func (r *Reader) accept(ev *model.TraceEvent) bool {
	if ev.Kind == model.Return {
		n := len(r.ignoredLevels)
		if n > 0 && r.ignoredLevels[n-1] == ev.Depth {
			if _, ok := ev.ReturnLiteral(); ok {
				r.ignoredLevels = r.ignoredLevels[:n-1]
				ev.Orphan = true
			}
		}
		return true
	}

	if r.ignored(*ev) {
		r.ignoredLevels = append(r.ignoredLevels, ev.Depth)
		r.log.Debug("ignoring call", zap.String("target", ev.TargetID), zap.String("file", ev.File))
		return false
	}
	return true
}

func (r *Reader) ignored(ev model.TraceEvent) bool {
	if containsAny(ev.File, r.opts.IgnoredFiles) {
		return true
	}
	t := model.ParseTarget(ev.TargetID)
	if t.IsMethod() && containsAny(t.Class, r.opts.IgnoredTargets) {
		return true
	}
	return containsAny(t.Function, r.opts.IgnoredFunctions)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
