// Package model defines core data structures for phpconsistent.
package model

import (
	"strings"
)

// EventKind indicates whether a trace event opens or closes a call.
type EventKind string

const (
	Call   EventKind = "call"
	Return EventKind = "return"
)

// TraceEvent is one normalized line of an execution trace.
type TraceEvent struct {
	Kind        EventKind
	Depth       int
	TargetID    string
	UserDefined bool
	IncludeFile string
	File        string
	Line        int
	// Tokens holds the argument literals of a call, or at most one
	// return literal for a return.
	Tokens []string
	// Orphan marks a return whose call was filtered out before it
	// reached the tracker.
	Orphan bool
}

// ReturnLiteral returns the return value literal of a return event.
func (e TraceEvent) ReturnLiteral() (string, bool) {
	if e.Kind != Return || len(e.Tokens) == 0 {
		return "", false
	}
	return e.Tokens[0], true
}

// Target is a parsed call target such as "App\User->save" or "strlen".
type Target struct {
	Class    string
	Function string
	Static   bool
}

// ParseTarget splits a trace target identifier into its class and function parts.
func ParseTarget(id string) Target {
	if i := strings.LastIndex(id, "->"); i >= 0 {
		return Target{Class: id[:i], Function: id[i+2:]}
	}
	if i := strings.LastIndex(id, "::"); i >= 0 {
		return Target{Class: id[:i], Function: id[i+2:], Static: true}
	}
	return Target{Function: id}
}

// IsMethod reports whether the target is a method call.
func (t Target) IsMethod() bool {
	return t.Class != ""
}

func (t Target) String() string {
	switch {
	case t.Class == "":
		return t.Function
	case t.Static:
		return t.Class + "::" + t.Function
	default:
		return t.Class + "->" + t.Function
	}
}

// TypeExpression is a declared type, possibly a union such as "int|string".
type TypeExpression string

// Mixed is the wildcard type that accepts any value.
const Mixed = "mixed"

// Candidates returns the alternatives of the union, trimmed, in declaration order.
func (t TypeExpression) Candidates() []string {
	if strings.TrimSpace(string(t)) == "" {
		return nil
	}
	parts := strings.Split(string(t), "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Param is a documented parameter.
type Param struct {
	Name string
	Type TypeExpression
}

// Signature is the declared contract of a callable.
type Signature struct {
	// Params are the documented @param entries in order.
	Params []Param
	// DefinedParams are the parameter names from the callable's definition.
	DefinedParams []string
	Return        TypeExpression
	HasReturn     bool
	Suppressed    bool
}

// Hierarchy lists the types an instance of a class is also an instance of.
type Hierarchy struct {
	Ancestors  []string
	Implements []string
}

// CallFrame is a pending call awaiting its return.
type CallFrame struct {
	TargetID       string
	File           string
	Line           int
	ExpectedReturn TypeExpression
	HasReturn      bool
	Suppressed     bool
}

// DeclKind is the syntactic kind of a PHP declaration.
type DeclKind string

const (
	Class     DeclKind = "class"
	Interface DeclKind = "interface"
	Trait     DeclKind = "trait"
	Function  DeclKind = "function"
	Method    DeclKind = "method"
)

// Declaration is a callable or class-like definition extracted from source.
type Declaration struct {
	Kind DeclKind
	// Name is fully qualified for functions and class-likes, and the bare
	// method name for methods.
	Name string
	// Class is the fully qualified owner of a method.
	Class     string
	Namespace string
	File      string
	Line      int
	Doc       string
	Params    []string
	// Extends, Implements and Traits hold fully qualified names.
	Extends    []string
	Implements []string
	Traits     []string
}
