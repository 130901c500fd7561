// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// analysis reports.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/phpconsistent/internal/docblock"
	"github.com/phobologic/phpconsistent/internal/engine"
	"github.com/phobologic/phpconsistent/internal/ranking"
	"github.com/phobologic/phpconsistent/internal/resolver"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeReport converts analysis results into TOON format. The hotspots
// table is omitted when hotspots is empty.
func EncodeReport(results []engine.Result, hotspots []ranking.Hotspot) string {
	var parts []string

	var runRows [][]string
	total := 0
	for i := range results {
		r := &results[i]
		total += len(r.Failures)
		runRows = append(runRows, []string{
			r.Source,
			strconv.Itoa(r.Stats.Trace.Events),
			strconv.Itoa(len(r.Failures)),
			strconv.Itoa(r.Stats.Tracker.Unresolved),
			yesNo(r.Missing),
		})
	}
	parts = append(parts, formatTabular("runs", []string{"source", "events", "failures", "unresolved", "missing"}, runRows))

	var failureRows [][]string
	for i := range results {
		for _, f := range results[i].Failures {
			failureRows = append(failureRows, []string{
				string(f.Kind),
				f.File,
				strconv.Itoa(f.Line),
				f.Target,
				f.Message(),
			})
		}
	}
	parts = append(parts, formatTabular("failures", []string{"kind", "file", "line", "target", "message"}, failureRows))

	if len(hotspots) > 0 {
		parts = append(parts, EncodeHotspots(hotspots))
	}

	parts = append(parts, fmt.Sprintf("total: %d", total))
	return strings.Join(parts, "\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EncodeHotspots renders the hotspots table.
func EncodeHotspots(hotspots []ranking.Hotspot) string {
	var rows [][]string
	for _, h := range hotspots {
		rows = append(rows, []string{h.Target, strconv.Itoa(h.Failures)})
	}
	return formatTabular("hotspots", []string{"target", "failures"}, rows)
}

// EncodeSignatures lists the documented signatures and the inheritance
// relations of an index.
func EncodeSignatures(ix *resolver.Index) string {
	var parts []string

	var sigRows [][]string
	for _, d := range ix.Callables() {
		sig := docblock.Signature(docblock.Parse(d.Doc), d.Params)
		params := make([]string, 0, len(sig.Params))
		for _, p := range sig.Params {
			params = append(params, strings.TrimSpace(string(p.Type)+" "+p.Name))
		}
		ret := string(sig.Return)
		if sig.Suppressed {
			ret = "(ignored)"
		}
		sigRows = append(sigRows, []string{
			resolver.TargetID(d),
			d.File,
			strconv.Itoa(d.Line),
			strings.Join(params, " "),
			ret,
		})
	}
	parts = append(parts, formatTabular("signatures", []string{"target", "file", "line", "params", "return"}, sigRows))

	var edgeRows [][]string
	for _, e := range ix.Edges() {
		kind := "extends"
		if e.Interface {
			kind = "implements"
		}
		edgeRows = append(edgeRows, []string{e.Child, kind, e.Parent})
	}
	parts = append(parts, formatTabular("inheritance", []string{"child", "relation", "parent"}, edgeRows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
