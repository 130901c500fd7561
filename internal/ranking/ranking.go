// Package ranking orders and filters failures for reporting.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/phpconsistent/internal/model"
)

// Hotspot is a call target with the number of failures attributed to it.
type Hotspot struct {
	Target   string
	Failures int
	// Kinds counts failures per kind.
	Kinds map[model.FailureKind]int
}

// Hotspots returns the targets with the most failures, most first and ties
// by name. If n is <= 0 every target is returned.
func Hotspots(failures []model.Failure, n int) []Hotspot {
	byTarget := make(map[string]*Hotspot)
	for i := range failures {
		f := &failures[i]
		h, ok := byTarget[f.Target]
		if !ok {
			h = &Hotspot{Target: f.Target, Kinds: make(map[model.FailureKind]int)}
			byTarget[f.Target] = h
		}
		h.Failures++
		h.Kinds[f.Kind]++
	}

	out := make([]Hotspot, 0, len(byTarget))
	for _, h := range byTarget {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].Target < out[j].Target
	})

	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// FilterByTarget returns the failures whose target contains substr,
// case-insensitively, keeping their order. An empty substr keeps everything.
func FilterByTarget(failures []model.Failure, substr string) []model.Failure {
	if substr == "" {
		return failures
	}
	lower := strings.ToLower(substr)
	var out []model.Failure
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f.Target), lower) {
			out = append(out, f)
		}
	}
	return out
}

// FilterByKind keeps failures of the given kinds. No kinds keeps everything.
func FilterByKind(failures []model.Failure, kinds ...model.FailureKind) []model.Failure {
	if len(kinds) == 0 {
		return failures
	}
	want := make(map[model.FailureKind]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}
	var out []model.Failure
	for _, f := range failures {
		if _, ok := want[f.Kind]; ok {
			out = append(out, f)
		}
	}
	return out
}
