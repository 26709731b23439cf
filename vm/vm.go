package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// VM: bytecode execution engine
// ---------------------------------------------------------------------------

// VM executes one chunk at a time against a bounded operand stack.
type VM struct {
	stdout     io.Writer
	stderr     io.Writer
	trace      io.Writer // nil disables tracing
	stackLimit int
	log        commonlog.Logger

	// Execution state
	chunk *bytecode.Chunk
	ip    int // offset of the next byte to fetch
	stack []bytecode.Value
}

// New creates a VM.
func New(opts ...Option) *VM {
	vm := &VM{}
	defaults(vm)
	for _, opt := range opts {
		opt(vm)
	}
	vm.stack = make([]bytecode.Value, 0, vm.stackLimit)
	return vm
}

// StackLimit returns the operand stack capacity.
func (vm *VM) StackLimit() int {
	return vm.stackLimit
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Interpret compiles and runs source. Results go to the VM's stdout and
// diagnostics to its stderr. Source that is empty or only whitespace is not
// compiled.
func (vm *VM) Interpret(source string) InterpretResult {
	if strings.TrimSpace(source) == "" {
		return InterpretNoOp
	}

	chunk, err := compiler.Compile(source)
	if err != nil {
		fmt.Fprintln(vm.stderr, err)
		return InterpretCompileError
	}
	return vm.execute(chunk)
}

// InterpretChunk validates and runs a precompiled chunk, reporting the
// same way Interpret does. A structurally invalid chunk is reported as a
// compile error since it never reaches the execution loop.
func (vm *VM) InterpretChunk(chunk *bytecode.Chunk) InterpretResult {
	if chunk == nil {
		fmt.Fprintln(vm.stderr, msgNoChunk)
		return InterpretCompileError
	}
	if err := chunk.Validate(); err != nil {
		fmt.Fprintln(vm.stderr, err)
		return InterpretCompileError
	}
	return vm.execute(chunk)
}

func (vm *VM) execute(chunk *bytecode.Chunk) InterpretResult {
	value, err := vm.Run(chunk)
	if err != nil {
		fmt.Fprintln(vm.stderr, err)
		return InterpretRuntimeError
	}
	fmt.Fprintln(vm.stdout, value)
	return InterpretOK
}

// Run executes chunk until OP_RETURN and returns the value it popped. On
// failure the error is a *RuntimeError and the stack is reset.
func (vm *VM) Run(chunk *bytecode.Chunk) (bytecode.Value, error) {
	if chunk == nil {
		return bytecode.Nil, &RuntimeError{Message: msgNoChunk}
	}
	vm.chunk = chunk
	vm.ip = 0
	vm.resetStack()
	defer func() { vm.chunk = nil }()

	value, err := vm.run()
	if err != nil {
		var rerr *RuntimeError
		if errors.As(err, &rerr) {
			vm.log.Debugf("runtime error at line %d: %s", rerr.Line, rerr.Message)
		}
		vm.resetStack()
		return bytecode.Nil, err
	}
	return value, nil
}

func (vm *VM) run() (bytecode.Value, error) {
	code := vm.chunk.Code
	for {
		if vm.ip >= len(code) {
			return bytecode.Nil, vm.runtimeError(msgMissingReturn)
		}
		if vm.trace != nil {
			vm.traceInstruction()
		}

		op := bytecode.Opcode(code[vm.ip])
		vm.ip++

		switch op {
		case bytecode.OpConstant:
			if vm.ip >= len(code) {
				return bytecode.Nil, vm.runtimeError("Truncated OP_CONSTANT.")
			}
			idx := int(code[vm.ip])
			vm.ip++
			if idx >= len(vm.chunk.Constants) {
				return bytecode.Nil, vm.runtimeError(fmt.Sprintf("Constant index %d out of range.", idx))
			}
			if err := vm.push(vm.chunk.Constants[idx]); err != nil {
				return bytecode.Nil, err
			}

		case bytecode.OpNil:
			if err := vm.push(bytecode.Nil); err != nil {
				return bytecode.Nil, err
			}

		case bytecode.OpTrue:
			if err := vm.push(bytecode.BoolValue(true)); err != nil {
				return bytecode.Nil, err
			}

		case bytecode.OpFalse:
			if err := vm.push(bytecode.BoolValue(false)); err != nil {
				return bytecode.Nil, err
			}

		case bytecode.OpEqual:
			b, a, err := vm.pop2()
			if err != nil {
				return bytecode.Nil, err
			}
			vm.stack = append(vm.stack, bytecode.BoolValue(bytecode.Equal(a, b)))

		case bytecode.OpGreater, bytecode.OpLess,
			bytecode.OpAdd, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if err := vm.binaryOp(op); err != nil {
				return bytecode.Nil, err
			}

		case bytecode.OpNot:
			v, err := vm.pop()
			if err != nil {
				return bytecode.Nil, err
			}
			vm.stack = append(vm.stack, bytecode.BoolValue(v.IsFalsey()))

		case bytecode.OpNegate:
			if err := vm.peekCount(1); err != nil {
				return bytecode.Nil, err
			}
			if !vm.peek(0).IsNumber() {
				return bytecode.Nil, vm.runtimeError(msgOperandNumber)
			}
			v, _ := vm.pop()
			vm.stack = append(vm.stack, bytecode.NumberValue(-v.AsNumber()))

		case bytecode.OpReturn:
			if len(vm.stack) == 0 {
				return bytecode.Nil, nil
			}
			v, _ := vm.pop()
			return v, nil

		default:
			return bytecode.Nil, vm.runtimeError(fmt.Sprintf("Unknown opcode %d.", byte(op)))
		}
	}
}

// binaryOp pops two numeric operands (right first) and pushes the result.
// Operands are type-checked before they are popped so the stack is intact
// for the error report.
func (vm *VM) binaryOp(op bytecode.Opcode) error {
	if err := vm.peekCount(2); err != nil {
		return err
	}
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(msgOperandsNumbers)
	}
	bv, av, _ := vm.pop2()
	a, b := av.AsNumber(), bv.AsNumber()

	var result bytecode.Value
	switch op {
	case bytecode.OpGreater:
		result = bytecode.BoolValue(a > b)
	case bytecode.OpLess:
		result = bytecode.BoolValue(a < b)
	case bytecode.OpAdd:
		result = bytecode.NumberValue(a + b)
	case bytecode.OpSubtract:
		result = bytecode.NumberValue(a - b)
	case bytecode.OpMultiply:
		result = bytecode.NumberValue(a * b)
	case bytecode.OpDivide:
		// IEEE-754: division by zero yields ±Inf or NaN.
		result = bytecode.NumberValue(a / b)
	}
	vm.stack = append(vm.stack, result)
	return nil
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
}

func (vm *VM) push(v bytecode.Value) error {
	if len(vm.stack) >= vm.stackLimit {
		return vm.runtimeError(msgStackOverflow)
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (bytecode.Value, error) {
	if len(vm.stack) == 0 {
		return bytecode.Nil, vm.runtimeError(msgStackUnderflow)
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// pop2 pops the right operand and then the left one.
func (vm *VM) pop2() (bytecode.Value, bytecode.Value, error) {
	if err := vm.peekCount(2); err != nil {
		return bytecode.Nil, bytecode.Nil, err
	}
	right, _ := vm.pop()
	left, _ := vm.pop()
	return right, left, nil
}

// peek returns the value distance slots below the top.
func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) peekCount(n int) error {
	if len(vm.stack) < n {
		return vm.runtimeError(msgStackUnderflow)
	}
	return nil
}

// runtimeError builds an error tagged with the line of the byte most
// recently fetched. An opcode and its operand always share a line.
func (vm *VM) runtimeError(message string) *RuntimeError {
	offset := vm.ip - 1
	if offset < 0 {
		offset = 0
	}
	return &RuntimeError{Message: message, Line: vm.chunk.LineAt(offset)}
}
