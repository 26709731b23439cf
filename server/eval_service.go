package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Connect procedure names. Requests carry the source as a StringValue and
// responses are Structs, so no generated code is needed on either side.
const (
	EvalServiceName       = "lox.v1.EvalService"
	EvaluateProcedure     = "/" + EvalServiceName + "/Evaluate"
	DisassembleProcedure  = "/" + EvalServiceName + "/Disassemble"
	evalServicePathPrefix = "/" + EvalServiceName + "/"
)

// EvalService implements the EvalService Connect handlers.
type EvalService struct {
	evaluator *Evaluator
}

// NewEvalService creates an EvalService.
func NewEvalService(evaluator *Evaluator) *EvalService {
	return &EvalService{evaluator: evaluator}
}

// Handler returns the path prefix and HTTP handler serving both procedures.
func (s *EvalService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, s.Evaluate, opts...))
	mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, s.Disassemble, opts...))
	return evalServicePathPrefix, mux
}

// Evaluate compiles and executes a Lox expression.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	ev, err := s.evaluator.Evaluate(ctx, source)
	if err != nil {
		return nil, connectError(ctx, err)
	}
	return structResponse(ev)
}

// Disassemble compiles a Lox expression and returns its bytecode listing.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	ev, err := s.evaluator.Disassemble(ctx, source)
	if err != nil {
		return nil, connectError(ctx, err)
	}
	return structResponse(ev)
}

func structResponse(ev *Evaluation) (*connect.Response[structpb.Struct], error) {
	msg, err := ev.Struct()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp := connect.NewResponse(msg)
	resp.Header().Set("X-Request-Id", ev.RequestID)
	return resp, nil
}

func connectError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return connect.NewError(connect.CodeCanceled, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
