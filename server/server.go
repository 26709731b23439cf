package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/chazu/loxvm/cache"
	"github.com/chazu/loxvm/vm"
)

// LoxServer serves Lox evaluation over Connect (HTTP/JSON and binary
// protobuf) and plain gRPC. Both front ends share one worker pool.
type LoxServer struct {
	pool       *WorkerPool
	evaluator  *Evaluator
	mux        *http.ServeMux
	grpcServer *grpc.Server
}

// ServerOption configures a LoxServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	workers    int
	stackLimit int
	trace      bool
	cache      *cache.Cache
}

// WithWorkers sets how many programs may execute concurrently.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// WithStackLimit sets the operand stack limit of each request's VM.
func WithStackLimit(n int) ServerOption {
	return func(c *serverConfig) { c.stackLimit = n }
}

// WithTrace includes an execution trace in every Evaluate response.
func WithTrace(enabled bool) ServerOption {
	return func(c *serverConfig) { c.trace = enabled }
}

// WithCache serves compiled chunks from c. The server does not close it.
func WithCache(c *cache.Cache) ServerOption {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// New creates a LoxServer.
func New(opts ...ServerOption) *LoxServer {
	cfg := &serverConfig{
		workers:    4,
		stackLimit: vm.DefaultStackLimit,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool := NewWorkerPool(cfg.workers)
	evaluator := NewEvaluator(pool, cfg.cache, cfg.stackLimit, cfg.trace)

	s := &LoxServer{
		pool:       pool,
		evaluator:  evaluator,
		mux:        http.NewServeMux(),
		grpcServer: grpc.NewServer(),
	}

	// Register Connect handlers
	evalPath, evalHandler := NewEvalService(evaluator).Handler()
	s.mux.Handle(evalPath, evalHandler)

	// Register gRPC service with reflection so clients can discover it
	s.grpcServer.RegisterService(&InterpreterServiceDesc, NewInterpreterService(evaluator))
	reflection.Register(s.grpcServer)

	return s
}

// Handler returns the Connect HTTP handler.
func (s *LoxServer) Handler() http.Handler {
	return s.mux
}

// GRPCServer returns the gRPC server, e.g. to serve it on a custom listener.
func (s *LoxServer) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Evaluator returns the evaluator shared by all front ends.
func (s *LoxServer) Evaluator() *Evaluator {
	return s.evaluator
}

// ListenAndServe serves Connect on httpAddr and gRPC on grpcAddr until ctx
// is cancelled or either listener fails.
func (s *LoxServer) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", grpcAddr, err)
	}
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Lox server listening")
	log.Infof("  Connect (HTTP/JSON): http://%s%s", httpAddr, EvaluateProcedure)
	log.Infof("  gRPC (binary):       grpc://%s", grpcLis.Addr())

	errc := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			errc <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Warningf("http shutdown: %s", serr)
	}
	s.grpcServer.GracefulStop()
	return err
}

// Stop shuts down the server.
func (s *LoxServer) Stop() {
	s.grpcServer.Stop()
	s.pool.Stop()
}
