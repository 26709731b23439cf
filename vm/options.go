package vm

import (
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// DefaultStackLimit is the operand stack capacity used when none is set.
const DefaultStackLimit = 256

// Option configures a VM.
type Option func(*VM)

// WithStdout sets where program results are printed.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) {
		vm.stdout = w
	}
}

// WithStderr sets where compile and runtime diagnostics are printed.
func WithStderr(w io.Writer) Option {
	return func(vm *VM) {
		vm.stderr = w
	}
}

// WithTrace enables execution tracing to w. A nil writer disables it.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) {
		vm.trace = w
	}
}

// WithStackLimit bounds the operand stack. Values below one select
// DefaultStackLimit.
func WithStackLimit(n int) Option {
	return func(vm *VM) {
		if n < 1 {
			n = DefaultStackLimit
		}
		vm.stackLimit = n
	}
}

// WithLogger replaces the package logger, e.g. to tag log lines with a
// request ID.
func WithLogger(l commonlog.Logger) Option {
	return func(vm *VM) {
		if l != nil {
			vm.log = l
		}
	}
}

func defaults(vm *VM) {
	vm.stdout = os.Stdout
	vm.stderr = os.Stderr
	vm.stackLimit = DefaultStackLimit
	vm.log = log
}
