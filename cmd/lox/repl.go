package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/vm"
)

// repl reads one expression per line and prints its value. A single VM
// serves the whole session.
type repl struct {
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	stackLimit int
	trace      bool
	disasm     bool
	machine    *vm.VM
}

func newREPL(in io.Reader, out, errOut io.Writer, stackLimit int, trace bool) *repl {
	r := &repl{
		in:         in,
		out:        out,
		errOut:     errOut,
		stackLimit: stackLimit,
		trace:      trace,
	}
	r.reset()
	return r
}

func (r *repl) reset() {
	opts := []vm.Option{
		vm.WithStdout(r.out),
		vm.WithStderr(r.errOut),
		vm.WithStackLimit(r.stackLimit),
	}
	if r.trace {
		opts = append(opts, vm.WithTrace(r.errOut))
	}
	r.machine = vm.New(opts...)
}

// Run loops until EOF or an exit command.
func (r *repl) Run() {
	fmt.Fprintln(r.out, "Lox REPL (type 'exit' to quit, ':help' for commands)")

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "exit" || trimmed == "quit" {
			break
		}
		if strings.HasPrefix(trimmed, ":") {
			r.command(trimmed)
			continue
		}
		r.eval(line)
	}

	fmt.Fprintln(r.out)
}

func (r *repl) eval(line string) vm.InterpretResult {
	if r.disasm && strings.TrimSpace(line) != "" {
		if chunk, err := compiler.Compile(line); err == nil {
			fmt.Fprint(r.out, bytecode.Disassemble(chunk, "repl"))
		}
	}
	return r.machine.Interpret(line)
}

// command handles REPL meta-commands
func (r *repl) command(cmd string) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "REPL Commands:")
		fmt.Fprintln(r.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(r.out, "  :disasm           Toggle printing bytecode before running")
		fmt.Fprintln(r.out, "  :trace            Toggle execution tracing")
		fmt.Fprintln(r.out, "  exit, quit        Exit REPL")
	case ":disasm":
		r.disasm = !r.disasm
		fmt.Fprintf(r.out, "disassembly %s\n", onOff(r.disasm))
	case ":trace":
		r.trace = !r.trace
		r.reset()
		fmt.Fprintf(r.out, "tracing %s\n", onOff(r.trace))
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
