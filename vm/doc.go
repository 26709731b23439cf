// Package vm executes Lox bytecode chunks on a stack machine.
//
// A VM owns its operand stack and output sinks; nothing is shared between
// instances, so independent VMs may run concurrently. Each call to Run or
// Interpret starts from an empty stack.
//
//	machine := vm.New(vm.WithStdout(os.Stdout))
//	switch machine.Interpret("1 + 2 * 3") {
//	case vm.InterpretOK:
//		// "7" was written to stdout
//	case vm.InterpretCompileError, vm.InterpretRuntimeError:
//		// diagnostics were written to stderr
//	}
//
// Tracing (WithTrace) writes the stack contents and the disassembled
// instruction before every step. It never changes program results.
package vm
