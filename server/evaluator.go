package server

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/loxvm/cache"
	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/vm"
)

// Diagnostic is one compile or runtime error in a response.
type Diagnostic struct {
	Kind    string // "scan", "parse" or "runtime"
	Line    int
	Message string
	Text    string // the diagnostic as the CLI prints it
}

// Evaluation is the outcome of evaluating one source text.
type Evaluation struct {
	RequestID   string
	Result      vm.InterpretResult
	Value       string // display form of the result; empty unless Result is OK
	Output      string // what the CLI would print to stdout
	Trace       string
	Listing     string // disassembly, for Disassemble requests
	Diagnostics []Diagnostic
	Cached      bool
}

// Struct converts e to the structpb form returned by the Connect and gRPC
// services.
func (e *Evaluation) Struct() (*structpb.Struct, error) {
	diags := make([]any, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		diags[i] = map[string]any{
			"kind":    d.Kind,
			"line":    d.Line,
			"message": d.Message,
			"text":    d.Text,
		}
	}
	fields := map[string]any{
		"requestId":   e.RequestID,
		"status":      e.Result.String(),
		"output":      e.Output,
		"value":       e.Value,
		"diagnostics": diags,
		"cached":      e.Cached,
	}
	if e.Trace != "" {
		fields["trace"] = e.Trace
	}
	if e.Listing != "" {
		fields["listing"] = e.Listing
	}
	return structpb.NewStruct(fields)
}

// Evaluator compiles and runs sources for the network services. Compilation
// happens on the caller's goroutine; execution is bounded by the pool.
type Evaluator struct {
	pool       *WorkerPool
	cache      *cache.Cache // optional
	stackLimit int
	trace      bool
}

// NewEvaluator creates an Evaluator that runs programs on pool. c may be
// nil to compile every request.
func NewEvaluator(pool *WorkerPool, c *cache.Cache, stackLimit int, trace bool) *Evaluator {
	return &Evaluator{
		pool:       pool,
		cache:      c,
		stackLimit: stackLimit,
		trace:      trace,
	}
}

// compile returns the chunk for source, consulting the cache when present.
func (e *Evaluator) compile(ctx context.Context, source string) (*bytecode.Chunk, bool, error) {
	if e.cache == nil {
		chunk, err := compiler.Compile(source)
		return chunk, false, err
	}
	return e.cache.GetOrCompile(ctx, source, compiler.Compile)
}

// Evaluate compiles and runs source. Compile and runtime errors are part of
// the Evaluation; the error return is reserved for infrastructure failures
// such as cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, source string) (*Evaluation, error) {
	ev := &Evaluation{RequestID: uuid.NewString()}
	log.Debugf("[%s] evaluate %d bytes", ev.RequestID, len(source))

	if strings.TrimSpace(source) == "" {
		ev.Result = vm.InterpretNoOp
		return ev, nil
	}

	chunk, cached, err := e.compile(ctx, source)
	if err != nil {
		if diags := compiler.Diagnostics(err); len(diags) > 0 {
			ev.Result = vm.InterpretCompileError
			ev.Diagnostics = compileDiagnostics(diags)
			return ev, nil
		}
		return nil, err
	}
	ev.Cached = cached

	_, err = e.pool.Do(ctx, func() (any, error) {
		var trace bytes.Buffer
		opts := []vm.Option{vm.WithStackLimit(e.stackLimit)}
		if e.trace {
			opts = append(opts, vm.WithTrace(&trace))
		}
		machine := vm.New(opts...)

		value, runErr := machine.Run(chunk)
		ev.Trace = trace.String()

		var rerr *vm.RuntimeError
		switch {
		case runErr == nil:
			ev.Result = vm.InterpretOK
			ev.Value = value.String()
			ev.Output = ev.Value + "\n"
		case errors.As(runErr, &rerr):
			ev.Result = vm.InterpretRuntimeError
			ev.Diagnostics = []Diagnostic{{
				Kind:    "runtime",
				Line:    rerr.Line,
				Message: rerr.Message,
				Text:    rerr.Error(),
			}}
		default:
			return nil, runErr
		}
		return nil, nil
	})
	if err != nil {
		log.Errorf("[%s] evaluation failed: %s", ev.RequestID, err)
		return nil, err
	}
	return ev, nil
}

// Disassemble compiles source and returns its listing without running it.
func (e *Evaluator) Disassemble(ctx context.Context, source string) (*Evaluation, error) {
	ev := &Evaluation{RequestID: uuid.NewString()}
	log.Debugf("[%s] disassemble %d bytes", ev.RequestID, len(source))

	if strings.TrimSpace(source) == "" {
		ev.Result = vm.InterpretNoOp
		return ev, nil
	}

	chunk, cached, err := e.compile(ctx, source)
	if err != nil {
		if diags := compiler.Diagnostics(err); len(diags) > 0 {
			ev.Result = vm.InterpretCompileError
			ev.Diagnostics = compileDiagnostics(diags)
			return ev, nil
		}
		return nil, err
	}
	ev.Result = vm.InterpretOK
	ev.Cached = cached
	ev.Listing = bytecode.Disassemble(chunk, "code")
	return ev, nil
}

func compileDiagnostics(diags []*compiler.CompileError) []Diagnostic {
	out := make([]Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = Diagnostic{
			Kind:    d.Kind.String(),
			Line:    d.Line,
			Message: d.Message,
			Text:    d.Error(),
		}
	}
	return out
}
