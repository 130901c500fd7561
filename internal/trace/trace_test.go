package trace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/phpconsistent/internal/model"
)

const header = "Version: 3.1.6\nFile format: 4\nTRACE START [2024-05-01 10:00:00.000000]\n"

func callLine(level int, target, file string, line int, args ...string) string {
	fields := []string{
		fmt.Sprint(level), "1", "0", "0.0001", "392000", target, "1", "", file, fmt.Sprint(line), fmt.Sprint(len(args)),
	}
	fields = append(fields, args...)
	return strings.Join(fields, "\t")
}

func exitLine(level int) string {
	return fmt.Sprintf("%d\t1\t1\t0.0002\t392100", level)
}

func returnLine(level int, value string) string {
	return fmt.Sprintf("%d\t1\tR\t\t\t%s", level, value)
}

func buildTrace(lines ...string) string {
	return header + strings.Join(lines, "\n") + "\n\t\t\t0.0009\t392400\nTRACE END   [2024-05-01 10:00:00.000900]\n"
}

func readAll(t *testing.T, src string, opts Options) ([]model.TraceEvent, *Reader) {
	t.Helper()
	r := NewReader(strings.NewReader(src), opts)
	var events []model.TraceEvent
	for r.Next() {
		events = append(events, r.Event())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	return events, r
}

func TestReadCallAndReturn(t *testing.T) {
	t.Parallel()

	src := buildTrace(
		callLine(1, "{main}", "/app/index.php", 0),
		callLine(2, `App\Calc->add`, "/app/index.php", 5, "long", "string(1)"),
		exitLine(2),
		returnLine(2, "5"),
	)

	events, r := readAll(t, src, Options{Depth: 10})

	want := []model.TraceEvent{
		{
			Kind: model.Call, Depth: 2, TargetID: `App\Calc->add`, UserDefined: true,
			File: "/app/index.php", Line: 5, Tokens: []string{"long", "string(1)"},
		},
		{Kind: model.Return, Depth: 2},
		{Kind: model.Return, Depth: 2, Tokens: []string{"5"}},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if s := r.Stats(); s.Events != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEntryLineIsBaseline(t *testing.T) {
	t.Parallel()

	// The entry point sits at level 3; depth 1 keeps levels 3 and 4 only.
	src := buildTrace(
		callLine(3, "{main}", "/app/index.php", 0),
		callLine(4, "outer", "/app/a.php", 2, "long"),
		callLine(5, "inner", "/app/a.php", 3, "string(2)"),
		returnLine(5, "'x'"),
		returnLine(4, "1"),
	)

	events, r := readAll(t, src, Options{Depth: 1})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].TargetID != "outer" || events[1].Kind != model.Return || events[1].Depth != 4 {
		t.Errorf("unexpected events: %+v", events)
	}
	if s := r.Stats(); s.TooDeep != 2 {
		t.Errorf("TooDeep = %d, want 2", s.TooDeep)
	}
}

func TestNonNumericLevelEndsTrace(t *testing.T) {
	t.Parallel()

	src := header + strings.Join([]string{
		callLine(1, "{main}", "/app/index.php", 0),
		callLine(2, "first", "/app/a.php", 1),
		"TRACE END",
		callLine(2, "after", "/app/a.php", 9),
	}, "\n") + "\n"

	events, _ := readAll(t, src, Options{Depth: 5})
	if len(events) != 1 || events[0].TargetID != "first" {
		t.Errorf("expected only the first call, got %+v", events)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	t.Parallel()

	src := buildTrace(
		callLine(1, "{main}", "/app/index.php", 0),
		"2\t1",
		"2\t1\tX\t0\t0\tbogus",
		"2\t1\t0\t0\t0\t",
		callLine(2, "ok", "/app/a.php", 1),
	)

	events, r := readAll(t, src, Options{Depth: 5})
	if len(events) != 1 || events[0].TargetID != "ok" {
		t.Errorf("events = %+v", events)
	}
	if s := r.Stats(); s.Malformed != 3 {
		t.Errorf("Malformed = %d, want 3", s.Malformed)
	}
}

func TestReturnLiteralFromTail(t *testing.T) {
	t.Parallel()

	tail := strings.Join([]string{"2", "1", "1", "0", "0", "", "", "", "", "", "", "NULL"}, "\t")
	src := buildTrace(callLine(1, "{main}", "/app/index.php", 0), tail)

	events, _ := readAll(t, src, Options{Depth: 5})
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	if lit, ok := events[0].ReturnLiteral(); !ok || lit != "NULL" {
		t.Errorf("ReturnLiteral = %q, %v", lit, ok)
	}
}

func TestIgnoredCallMarksReturnOrphan(t *testing.T) {
	t.Parallel()

	src := buildTrace(
		callLine(1, "{main}", "/app/index.php", 0),
		callLine(2, "PHPUnit_Framework_Assert::assertTrue", "/app/test.php", 4, "bool"),
		callLine(3, "helper", "/app/lib.php", 8, "long"),
		returnLine(3, "1"),
		exitLine(2),
		returnLine(2, "NULL"),
		callLine(2, "kept", "/app/test.php", 5),
		returnLine(2, "TRUE"),
	)

	events, r := readAll(t, src, Options{Depth: 10, IgnoredTargets: []string{"PHPUnit_Framework_Assert"}})

	var got []string
	for _, ev := range events {
		s := string(ev.Kind) + ":" + ev.TargetID
		if ev.Orphan {
			s += ":orphan"
		}
		got = append(got, s)
	}
	want := []string{"call:helper", "return:", "return:", "return::orphan", "call:kept", "return:"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if r.Stats().Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", r.Stats().Ignored)
	}
}

func TestIgnoreFilters(t *testing.T) {
	t.Parallel()

	lines := []string{
		callLine(1, "{main}", "/app/index.php", 0),
		callLine(2, "Vendor_Thing->run", "/app/src/a.php", 1),
		callLine(2, "App->debugDump", "/app/src/a.php", 2),
		callLine(2, "var_dump", "/app/src/a.php", 3),
		callLine(2, "App->save", "/app/vendor/lib.php", 4),
		callLine(2, "App->save", "/app/src/b.php", 5),
	}
	opts := Options{
		Depth:            10,
		IgnoredFiles:     []string{"/vendor/"},
		IgnoredTargets:   []string{"Vendor_"},
		IgnoredFunctions: []string{"dump", ""},
	}

	events, r := readAll(t, buildTrace(lines...), opts)
	if len(events) != 1 || events[0].Line != 5 {
		t.Errorf("events = %+v", events)
	}
	if r.Stats().Ignored != 4 {
		t.Errorf("Ignored = %d, want 4", r.Stats().Ignored)
	}
}

func TestClassPatternDoesNotMatchFunctions(t *testing.T) {
	t.Parallel()

	src := buildTrace(
		callLine(1, "{main}", "/app/index.php", 0),
		callLine(2, "str_repeat", "/app/a.php", 1),
	)
	events, _ := readAll(t, src, Options{Depth: 10, IgnoredTargets: []string{"str"}})
	if len(events) != 1 {
		t.Errorf("target patterns apply to classes only, got %+v", events)
	}
}

func TestEmptyAndHeaderOnly(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"", header, header + callLine(1, "{main}", "/a.php", 0)} {
		events, _ := readAll(t, src, Options{Depth: 3})
		if len(events) != 0 {
			t.Errorf("expected no events for %q, got %+v", src, events)
		}
	}
}

func TestNoTrailingNewline(t *testing.T) {
	t.Parallel()

	src := header + callLine(1, "{main}", "/a.php", 0) + "\n" + callLine(2, "f", "/a.php", 1, "long")
	events, _ := readAll(t, src, Options{Depth: 3})
	if len(events) != 1 || events[0].TargetID != "f" {
		t.Errorf("events = %+v", events)
	}
}
