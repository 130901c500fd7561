package model

import "fmt"

// FailureKind classifies a mismatch between a trace and a declared signature.
type FailureKind string

const (
	CountMismatch FailureKind = "count"
	NameMismatch  FailureKind = "name"
	TypeMismatch  FailureKind = "type"
)

// Failure is one mismatch found while analyzing a trace.
type Failure struct {
	Kind   FailureKind
	File   string
	Line   int
	Target string
	// Position is the 1-based parameter position; 0 means the return value.
	Position  int
	ParamName string
	// Expected and Observed are types for TypeMismatch and parameter
	// names for NameMismatch.
	Expected      string
	Observed      string
	DeclaredCount int
	ObservedCount int
}

// IsReturn reports whether the failure concerns a return value.
func (f Failure) IsReturn() bool {
	return f.Kind == TypeMismatch && f.Position == 0
}

// Message describes the mismatch without its location.
func (f Failure) Message() string {
	switch f.Kind {
	case CountMismatch:
		return fmt.Sprintf("Parameter count in docblock doesn't match the call to %s : docblock declares %d but the call passed %d",
			f.Target, f.DeclaredCount, f.ObservedCount)
	case NameMismatch:
		return fmt.Sprintf("Parameter names in function definition and docblock don't match when calling %s : parameter %d (%s) should be called %s according to docblock",
			f.Target, f.Position, f.Observed, f.Expected)
	case TypeMismatch:
		if f.IsReturn() {
			return fmt.Sprintf("Invalid return type from %s : should be of type %s but got %s instead",
				f.Target, f.Expected, f.Observed)
		}
		return fmt.Sprintf("Invalid type calling %s : parameter %d (%s) should be of type %s but got %s instead",
			f.Target, f.Position, f.ParamName, f.Expected, f.Observed)
	}
	return fmt.Sprintf("unknown failure calling %s", f.Target)
}

// String renders the failure with its location.
func (f Failure) String() string {
	return fmt.Sprintf("%s - in %s (line %d)", f.Message(), f.File, f.Line)
}
