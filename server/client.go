package server

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/types/known/structpb"
)

// RemoteClient talks to a running lox server over gRPC. It uses server
// reflection to confirm the interpreter service is offered before sending
// any source.
type RemoteClient struct {
	conn      *grpc.ClientConn
	refClient *grpcreflect.Client
	client    *InterpreterClient
	target    string
}

// Dial connects to target ("host:port"). The connection is plaintext;
// extra options are appended to the defaults.
func Dial(target string, opts ...grpc.DialOption) (*RemoteClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	return &RemoteClient{
		conn:      conn,
		refClient: grpcreflect.NewClientV1Alpha(context.Background(), rpb.NewServerReflectionClient(conn)),
		client:    NewInterpreterClient(conn),
		target:    target,
	}, nil
}

// Target returns the address the client was dialed with.
func (c *RemoteClient) Target() string {
	return c.target
}

// Services lists the services the server offers, excluding reflection.
func (c *RemoteClient) Services() ([]string, error) {
	services, err := c.refClient.ListServices()
	if err != nil {
		return nil, fmt.Errorf("listing services on %s: %w", c.target, err)
	}

	out := make([]string, 0, len(services))
	for _, svc := range services {
		// Skip reflection service itself
		if strings.HasPrefix(svc, "grpc.reflection") {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

// Check verifies that the server offers lox.v1.Interpreter.
func (c *RemoteClient) Check() error {
	services, err := c.Services()
	if err != nil {
		return err
	}
	if !slices.Contains(services, InterpreterServiceName) {
		return fmt.Errorf("%s does not offer %s", c.target, InterpreterServiceName)
	}
	return nil
}

// Interpret evaluates source on the server.
func (c *RemoteClient) Interpret(ctx context.Context, source string) (*structpb.Struct, error) {
	return c.client.Interpret(ctx, source)
}

// Close releases the reflection stream and the connection.
func (c *RemoteClient) Close() error {
	c.refClient.Reset()
	return c.conn.Close()
}
