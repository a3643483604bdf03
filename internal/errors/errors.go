package errors

import (
	"fmt"

	"github.com/Satar07/cyrilcc/internal/ast"
)

// Level is the severity of a diagnostic. The compiler has no warnings; the
// reporter still distinguishes notes attached to an error.
type Level string

const (
	Error Level = "error"
	Note  Level = "note"
)

// CompilerError is the single error type crossing package boundaries. The
// first one raised aborts the compilation.
type CompilerError struct {
	Level   Level
	Code    string // error code like E0001
	Message string
	Pos     ast.Position
	Notes   []string
}

func (e *CompilerError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s[%s]: %s",
			e.Pos.Filename, e.Pos.Line, e.Pos.Column, e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Level, e.Code, e.Message)
}

// Newf creates a positioned compiler error.
func Newf(code string, pos ast.Position, format string, args ...any) *CompilerError {
	return &CompilerError{
		Level:   Error,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// Internalf reports a broken compiler invariant. It carries no source
// position; the message names the pass and the entity involved.
func Internalf(format string, args ...any) *CompilerError {
	return &CompilerError{
		Level:   Error,
		Code:    ErrInternal,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithNote attaches an explanatory note rendered under the error.
func (e *CompilerError) WithNote(format string, args ...any) *CompilerError {
	e.Notes = append(e.Notes, fmt.Sprintf(format, args...))
	return e
}
