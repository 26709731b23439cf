package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/pkg/bytecode"
)

func newTestVM(opts ...Option) (*VM, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	opts = append([]Option{WithStdout(&stdout), WithStderr(&stderr)}, opts...)
	return New(opts...), &stdout, &stderr
}

func run(t *testing.T, source string) (bytecode.Value, error) {
	t.Helper()
	chunk, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	machine, _, _ := newTestVM()
	return machine.Run(chunk)
}

func TestRunArithmetic(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"-(1 + 3)", -4},
		{"3.14", 3.14},
		{"10 - 4 - 3", 3},
		{"8 / 4 / 2", 1},
		{"--5", 5},
		{"2 * -3", -6},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			v, err := run(t, tt.source)
			if err != nil {
				t.Fatal(err)
			}
			if !v.IsNumber() || v.AsNumber() != tt.want {
				t.Errorf("result = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestRunDivisionByZero(t *testing.T) {
	tests := []struct {
		source string
		check  func(float64) bool
		name   string
	}{
		{"1 / 0", func(f float64) bool { return math.IsInf(f, 1) }, "+Inf"},
		{"-1 / 0", func(f float64) bool { return math.IsInf(f, -1) }, "-Inf"},
		{"0 / 0", math.IsNaN, "NaN"},
	}
	for _, tt := range tests {
		v, err := run(t, tt.source)
		if err != nil {
			t.Fatalf("%s: %v", tt.source, err)
		}
		if !tt.check(v.AsNumber()) {
			t.Errorf("%s = %v, want %s", tt.source, v, tt.name)
		}
	}
}

func TestRunLogicAndComparison(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"!nil", true},
		{"!false", true},
		{"!true", false},
		{"!0", false},
		{`!""`, false},
		{"1 < 2", true},
		{"2 < 1", false},
		{"2 > 1", true},
		{"1 <= 1", true},
		{"1 >= 2", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{"nil == nil", true},
		{"nil == false", false},
		{`"a" == "a"`, true},
		{`"a" == "b"`, false},
		{`1 == "1"`, false},
		{"true == true", true},
		{"0 / 0 == 0 / 0", false},
		{"!(5 - 4 > 3 * 2 == !nil)", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			v, err := run(t, tt.source)
			if err != nil {
				t.Fatal(err)
			}
			if !v.IsBool() || v.AsBool() != tt.want {
				t.Errorf("result = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestRunStringConstant(t *testing.T) {
	v, err := run(t, `"hello"`)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsString() || v.AsString() != "hello" {
		t.Errorf("result = %v", v)
	}
}

func TestRunTypeErrors(t *testing.T) {
	tests := []struct {
		source  string
		message string
		line    int
	}{
		{"-true", "Operand must be a number.", 1},
		{`-"x"`, "Operand must be a number.", 1},
		{"1 + nil", "Operands must be numbers.", 1},
		{`"a" + "b"`, "Operands must be numbers.", 1},
		{"true * 2", "Operands must be numbers.", 1},
		{"1 < false", "Operands must be numbers.", 1},
		{"1 >= nil", "Operands must be numbers.", 1},
		{"1 +\n2 +\n\n-nil", "Operand must be a number.", 4},
		{"1\n/\nfalse", "Operands must be numbers.", 2},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, err := run(t, tt.source)
			var rerr *RuntimeError
			if !errors.As(err, &rerr) {
				t.Fatalf("error = %v, want *RuntimeError", err)
			}
			if rerr.Message != tt.message {
				t.Errorf("message = %q, want %q", rerr.Message, tt.message)
			}
			if rerr.Line != tt.line {
				t.Errorf("line = %d, want %d", rerr.Line, tt.line)
			}
		})
	}
}

func TestRunStackOverflow(t *testing.T) {
	chunk, err := compiler.Compile("1 + (2 + (3 + (4 + 5)))")
	if err != nil {
		t.Fatal(err)
	}

	machine, _, _ := newTestVM(WithStackLimit(4))
	_, err = machine.Run(chunk)
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Message != "Stack overflow." {
		t.Fatalf("error = %v, want stack overflow", err)
	}

	// The same chunk fits a deeper stack.
	machine, _, _ = newTestVM(WithStackLimit(5))
	v, err := machine.Run(chunk)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != 15 {
		t.Errorf("result = %v, want 15", v)
	}
}

func TestStackLimitDefault(t *testing.T) {
	if got := New(WithStackLimit(0)).StackLimit(); got != DefaultStackLimit {
		t.Errorf("StackLimit() = %d, want %d", got, DefaultStackLimit)
	}
}

func TestRunHandBuiltChunks(t *testing.T) {
	t.Run("return on empty stack", func(t *testing.T) {
		c := bytecode.NewChunk()
		c.WriteOp(bytecode.OpReturn, 1)
		v, err := New().Run(c)
		if err != nil || !v.IsNil() {
			t.Errorf("Run = %v, %v; want nil, nil", v, err)
		}
	})

	t.Run("missing return", func(t *testing.T) {
		c := bytecode.NewChunk()
		c.WriteOp(bytecode.OpTrue, 7)
		_, err := New().Run(c)
		var rerr *RuntimeError
		if !errors.As(err, &rerr) || rerr.Line != 7 {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("unknown opcode", func(t *testing.T) {
		c := bytecode.NewChunk()
		c.Write(200, 3)
		_, err := New().Run(c)
		if err == nil || !strings.Contains(err.Error(), "Unknown opcode 200.") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("underflow", func(t *testing.T) {
		c := bytecode.NewChunk()
		c.WriteOp(bytecode.OpAdd, 1)
		c.WriteOp(bytecode.OpReturn, 1)
		_, err := New().Run(c)
		if err == nil || !strings.Contains(err.Error(), "Stack underflow.") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("bad constant index", func(t *testing.T) {
		c := bytecode.NewChunk()
		c.WriteOp(bytecode.OpConstant, 1)
		c.Write(9, 1)
		c.WriteOp(bytecode.OpReturn, 1)
		if _, err := New().Run(c); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRunResetsStackBetweenCalls(t *testing.T) {
	machine, _, _ := newTestVM()

	bad, _ := compiler.Compile("1 + (2 * -nil)")
	if _, err := machine.Run(bad); err == nil {
		t.Fatal("expected runtime error")
	}

	good, _ := compiler.Compile("40 + 2")
	v, err := machine.Run(good)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != 42 {
		t.Errorf("result = %v, want 42", v)
	}
}

func TestInterpretResults(t *testing.T) {
	tests := []struct {
		source string
		result InterpretResult
		stdout string
		stderr string
	}{
		{"1 + 2", InterpretOK, "3\n", ""},
		{"3.14", InterpretOK, "3.14\n", ""},
		{"1 / 0", InterpretOK, "inf\n", ""},
		{`"hi"`, InterpretOK, "hi\n", ""},
		{"nil", InterpretOK, "nil\n", ""},
		{"1 < 2", InterpretOK, "true\n", ""},
		{"", InterpretNoOp, "", ""},
		{" \t\r\n ", InterpretNoOp, "", ""},
		{"// comment", InterpretOK, "nil\n", ""},
		{"-true", InterpretRuntimeError, "", "Operand must be a number.\n[line 1] in script\n"},
		{"1 +", InterpretCompileError, "", "[line 1] Error at end: Expect expression.\n"},
		{"1 + ; 2 *", InterpretCompileError, "",
			"[line 1] Error at ';': Expect expression.\n[line 1] Error at end: Expect expression.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			machine, stdout, stderr := newTestVM()
			if got := machine.Interpret(tt.source); got != tt.result {
				t.Errorf("Interpret() = %s, want %s", got, tt.result)
			}
			if stdout.String() != tt.stdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.stdout)
			}
			if stderr.String() != tt.stderr {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.stderr)
			}
		})
	}
}

func TestInterpretChunk(t *testing.T) {
	chunk, err := compiler.Compile("6 * 7")
	if err != nil {
		t.Fatal(err)
	}
	machine, stdout, _ := newTestVM()
	if got := machine.InterpretChunk(chunk); got != InterpretOK {
		t.Fatalf("InterpretChunk() = %s", got)
	}
	if stdout.String() != "42\n" {
		t.Errorf("stdout = %q", stdout.String())
	}

	broken := &bytecode.Chunk{Code: []byte{byte(bytecode.OpConstant)}, Lines: []int{1}}
	machine, _, stderr := newTestVM()
	if got := machine.InterpretChunk(broken); got != InterpretCompileError {
		t.Errorf("InterpretChunk(broken) = %s", got)
	}
	if !strings.Contains(stderr.String(), "invalid chunk") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunNilChunk(t *testing.T) {
	machine, _, stderr := newTestVM()

	v, err := machine.Run(nil)
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Message != "No chunk to run." {
		t.Fatalf("Run(nil) error = %v, want RuntimeError", err)
	}
	if !v.IsNil() {
		t.Errorf("Run(nil) value = %v, want nil", v)
	}

	if got := machine.InterpretChunk(nil); got != InterpretCompileError {
		t.Errorf("InterpretChunk(nil) = %s", got)
	}
	if stderr.String() != "No chunk to run.\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestInterpretResultExitCode(t *testing.T) {
	tests := map[InterpretResult]int{
		InterpretOK:           0,
		InterpretNoOp:         0,
		InterpretCompileError: 1,
		InterpretRuntimeError: 1,
	}
	for result, want := range tests {
		if got := result.ExitCode(); got != want {
			t.Errorf("%s.ExitCode() = %d, want %d", result, got, want)
		}
	}
}

func TestTraceDoesNotChangeResults(t *testing.T) {
	sources := []string{"1 + 2 * 3", "!(1 == 2)", "-nil", `"s"`}
	for _, src := range sources {
		plain, plainOut, plainErr := newTestVM()
		var trace bytes.Buffer
		traced, tracedOut, tracedErr := newTestVM(WithTrace(&trace))

		r1 := plain.Interpret(src)
		r2 := traced.Interpret(src)
		if r1 != r2 || plainOut.String() != tracedOut.String() || plainErr.String() != tracedErr.String() {
			t.Errorf("%q: tracing changed the outcome", src)
		}
		if trace.Len() == 0 {
			t.Errorf("%q: no trace output", src)
		}
	}
}

func TestTraceFormat(t *testing.T) {
	var trace bytes.Buffer
	machine, _, _ := newTestVM(WithTrace(&trace))
	machine.Interpret("1 + 2")

	want := strings.Join([]string{
		"          ",
		"0000    1 OP_CONSTANT      0 '1'",
		"          [ 1 ]",
		"0002    | OP_CONSTANT      1 '2'",
		"          [ 1 ][ 2 ]",
		"0004    | OP_ADD",
		"          [ 3 ]",
		"0005    | OP_RETURN",
	}, "\n") + "\n"
	if trace.String() != want {
		t.Errorf("trace =\n%s\nwant\n%s", trace.String(), want)
	}
}

func TestVMsAreIndependent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			machine, stdout, _ := newTestVM()
			for j := 0; j < 50; j++ {
				machine.Interpret("(1 + 2) * 3")
			}
			if want := strings.Repeat("9\n", 50); stdout.String() != want {
				t.Errorf("unexpected output %q", stdout.String())
			}
		}()
	}
	wg.Wait()
}
