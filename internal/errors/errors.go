// Package errors renders compile-time and fatal runtime diagnostics with
// source location and call-stack context. It is distinct from
// internal/object's heap Error value: a CruxError is something the CLI
// prints to stderr and exits on, never a Value a script can catch.
package errors

import (
	"fmt"
	"strings"
)

type Kind string

const (
	SyntaxError  Kind = "SyntaxError"
	CompileError Kind = "CompileError"
	RuntimeFatal Kind = "RuntimeFatal"
	ImportError  Kind = "ImportError"
)

// SourceLocation pinpoints a file/line/column.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one frame of a rendered call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// CruxError is a fully-rendered diagnostic: kind, message, location, an
// optional source line, and an optional call stack.
type CruxError struct {
	Kind      Kind
	Message   string
	Location  SourceLocation
	Source    string
	CallStack []StackFrame
}

func (e *CruxError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s\n", e.Kind, e.Message))
	if e.Location.File != "" {
		sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", e.Location.File, e.Location.Line, e.Location.Column))
		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n  %d | %s\n", e.Location.Line, e.Source))
			pad := len(fmt.Sprintf("%d | ", e.Location.Line))
			sb.WriteString(strings.Repeat(" ", pad))
			if e.Location.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			}
			sb.WriteString("^\n")
		}
	}
	if len(e.CallStack) > 0 {
		sb.WriteString("\ncall stack:\n")
		for _, f := range e.CallStack {
			if f.Function != "" {
				sb.WriteString(fmt.Sprintf("  at %s (%s:%d)\n", f.Function, f.File, f.Line))
			} else {
				sb.WriteString(fmt.Sprintf("  at %s:%d\n", f.File, f.Line))
			}
		}
	}
	return sb.String()
}

func NewSyntaxError(message, file string, line, column int) *CruxError {
	return &CruxError{Kind: SyntaxError, Message: message, Location: SourceLocation{File: file, Line: line, Column: column}}
}

func NewCompileError(message, file string, line, column int) *CruxError {
	return &CruxError{Kind: CompileError, Message: message, Location: SourceLocation{File: file, Line: line, Column: column}}
}

func NewImportError(message, file string) *CruxError {
	return &CruxError{Kind: ImportError, Message: message, Location: SourceLocation{File: file}}
}

func (e *CruxError) WithSource(source string) *CruxError {
	e.Source = source
	return e
}

func (e *CruxError) WithStack(stack []StackFrame) *CruxError {
	e.CallStack = stack
	return e
}
