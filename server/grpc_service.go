package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// gRPC service and method names.
const (
	InterpreterServiceName = "lox.v1.Interpreter"
	InterpretMethod        = "/" + InterpreterServiceName + "/Interpret"
)

// InterpreterServer is the server API for the lox.v1.Interpreter service.
type InterpreterServer interface {
	Interpret(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// InterpreterServiceDesc describes lox.v1.Interpreter. It is written by
// hand because both messages are well-known types.
var InterpreterServiceDesc = grpc.ServiceDesc{
	ServiceName: InterpreterServiceName,
	HandlerType: (*InterpreterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Interpret",
			Handler:    interpretHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lox/v1/interpreter.proto",
}

func interpretHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InterpreterServer).Interpret(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InterpretMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InterpreterServer).Interpret(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// InterpreterService implements InterpreterServer on top of an Evaluator.
type InterpreterService struct {
	evaluator *Evaluator
}

// NewInterpreterService creates an InterpreterService.
func NewInterpreterService(evaluator *Evaluator) *InterpreterService {
	return &InterpreterService{evaluator: evaluator}
}

// Interpret evaluates the source in req.
func (s *InterpreterService) Interpret(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	source := req.GetValue()
	if source == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}

	ev, err := s.evaluator.Evaluate(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	msg, err := ev.Struct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// InterpreterClient is the client API for the lox.v1.Interpreter service.
type InterpreterClient struct {
	cc grpc.ClientConnInterface
}

// NewInterpreterClient creates a client on cc.
func NewInterpreterClient(cc grpc.ClientConnInterface) *InterpreterClient {
	return &InterpreterClient{cc: cc}
}

// Interpret sends source to the server for evaluation.
func (c *InterpreterClient) Interpret(ctx context.Context, source string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InterpretMethod, wrapperspb.String(source), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
