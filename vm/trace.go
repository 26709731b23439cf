package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// traceInstruction writes the stack followed by the instruction at ip:
//
//	          [ 1 ][ 2 ]
//	0004    | OP_ADD
func (vm *VM) traceInstruction() {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range vm.stack {
		fmt.Fprintf(&sb, "[ %s ]", v)
	}
	sb.WriteByte('\n')
	_, text := bytecode.DisassembleInstruction(vm.chunk, vm.ip)
	sb.WriteString(text)
	sb.WriteByte('\n')
	// Trace output is best effort.
	_, _ = fmt.Fprint(vm.trace, sb.String())
}
