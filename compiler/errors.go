package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrorKind distinguishes lexical errors from parse errors.
type ErrorKind int

const (
	ScanError ErrorKind = iota
	ParseError
)

func (k ErrorKind) String() string {
	switch k {
	case ScanError:
		return "scan"
	case ParseError:
		return "parse"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Diagnostic messages produced by the compiler.
const (
	msgExpectExpression   = "Expect expression."
	msgExpectRightParen   = "Expect ')' after expression."
	msgExpectEnd          = "Expect end of expression."
	msgTooManyConstants   = "Too many constants in one chunk."
	msgUnterminatedString = "Unterminated string."
)

// CompileError is a single scan or parse diagnostic. Parse errors carry the
// offending token; scan errors only carry a line.
type CompileError struct {
	Kind    ErrorKind
	Line    int
	Token   Token
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where(), e.Message)
}

// Where describes the error location relative to the token, in the
// " at 'lexeme'" / " at end" form. It is empty for scan errors.
func (e *CompileError) Where() string {
	if e.Kind == ScanError {
		return ""
	}
	if e.Token.Type == TokenEOF {
		return " at end"
	}
	return fmt.Sprintf(" at '%s'", e.Token.Lexeme)
}

// Diagnostics extracts every CompileError from an error returned by Compile
// or CompileTokens, in the order they were reported.
func Diagnostics(err error) []*CompileError {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]*CompileError, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			var ce *CompileError
			if errors.As(e, &ce) {
				out = append(out, ce)
			}
		}
		return out
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return []*CompileError{ce}
	}
	return nil
}

// formatDiagnostics renders one diagnostic per line, matching what the CLI
// prints to stderr.
func formatDiagnostics(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}
