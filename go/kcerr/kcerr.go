// Package kcerr provides error wrapping that records the call stack and
// optional context at the point of wrapping. Errors wrapped with this
// package chain their context messages when printed, so a failure deep in
// a database driver reads like:
//
//	loading report batch: inserting into "builds": constraint violation
//
// Use Wrap when there is nothing to add beyond the call site, Wrapf to
// prepend context, and Fmt to create a new leaf error with a call stack.
package kcerr

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// maxStackDepth is how many frames are recorded at the wrap site.
const maxStackDepth = 32

// StackFrame is one recorded call site.
type StackFrame struct {
	File string
	Line int
}

func (f StackFrame) String() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// ErrorWithContext wraps an underlying error with the call stack of the
// first Wrap/Wrapf/Fmt call and the context strings of every subsequent
// Wrapf call, innermost first.
type ErrorWithContext struct {
	// Wrapped is the original error, nil only for errors created by Fmt.
	Wrapped error
	// Message is the leaf message for errors created by Fmt.
	Message string
	// Context holds Wrapf messages, innermost first.
	Context []string
	// CallStack is the stack at the first wrap site, innermost first.
	CallStack []StackFrame
}

// Error implements error. Context messages are printed outermost first,
// followed by the underlying error and the call stack.
func (e *ErrorWithContext) Error() string {
	var b strings.Builder
	for i := len(e.Context) - 1; i >= 0; i-- {
		b.WriteString(e.Context[i])
		b.WriteString(": ")
	}
	if e.Wrapped != nil {
		b.WriteString(e.Wrapped.Error())
	} else {
		b.WriteString(e.Message)
	}
	if len(e.CallStack) > 0 {
		b.WriteString(". At ")
		for i, f := range e.CallStack {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(f.String())
		}
	}
	return b.String()
}

// Unwrap supports errors.Is and errors.As.
func (e *ErrorWithContext) Unwrap() error {
	return e.Wrapped
}

func callStack(skip int) []StackFrame {
	stack := make([]StackFrame, 0, 8)
	for i := skip; i < skip+maxStackDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		// Trim to the last two path elements, which is enough to
		// locate a file in this repository.
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			file = strings.Join(parts[len(parts)-2:], "/")
		}
		stack = append(stack, StackFrame{File: file, Line: line})
	}
	return stack
}

// Wrap returns err annotated with the caller's stack. If err is already
// wrapped it is returned unchanged, keeping the innermost (most precise)
// stack. Wrap(nil) returns nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ewc *ErrorWithContext
	if errors.As(err, &ewc) {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: callStack(2),
	}
}

// Wrapf returns err annotated with the caller's stack and a context
// message. The message is prepended to the error text, so it should name
// the operation that failed, e.g. Wrapf(err, "opening database %q", name).
// Wrapf(nil, ...) returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	var ewc *ErrorWithContext
	if errors.As(err, &ewc) {
		return &ErrorWithContext{
			Wrapped:   ewc.Wrapped,
			Message:   ewc.Message,
			Context:   append(append([]string{}, ewc.Context...), context),
			CallStack: ewc.CallStack,
		}
	}
	return &ErrorWithContext{
		Wrapped:   err,
		Context:   []string{context},
		CallStack: callStack(2),
	}
}

// Fmt creates a new error with a call stack, in the manner of fmt.Errorf.
func Fmt(format string, args ...interface{}) error {
	return &ErrorWithContext{
		Message:   fmt.Sprintf(format, args...),
		CallStack: callStack(2),
	}
}

// Unwrap returns the innermost error, unwrapping every layer added by
// this package or by fmt.Errorf %w chains. Unlike errors.Unwrap it
// returns the deepest error rather than just one level up.
func Unwrap(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
