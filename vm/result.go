package vm

import "fmt"

// InterpretResult is the terminal state of one Interpret call.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	// InterpretNoOp means the source was empty or whitespace and nothing
	// was compiled or executed.
	InterpretNoOp
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretNoOp:
		return "noop"
	case InterpretCompileError:
		return "compile-error"
	case InterpretRuntimeError:
		return "runtime-error"
	default:
		return fmt.Sprintf("InterpretResult(%d)", int(r))
	}
}

// ExitCode maps a result to a process exit status.
func (r InterpretResult) ExitCode() int {
	switch r {
	case InterpretOK, InterpretNoOp:
		return 0
	default:
		return 1
	}
}

// Runtime error messages.
const (
	msgOperandsNumbers = "Operands must be numbers."
	msgOperandNumber   = "Operand must be a number."
	msgStackOverflow   = "Stack overflow."
	msgStackUnderflow  = "Stack underflow."
	msgMissingReturn   = "Reached end of chunk without OP_RETURN."
	msgNoChunk         = "No chunk to run."
)

// RuntimeError aborts execution. Line is the source line of the
// instruction that failed.
type RuntimeError struct {
	Message string
	Line    int
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Message, e.Line)
}
