// Lox CLI - compiles and runs Lox expressions on the bytecode VM
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/loxvm/cache"
	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/manifest"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/vm"
)

const (
	exitOK    = 0
	exitError = 1
)

var log = commonlog.GetLogger("loxvm.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// verbosity is a repeatable -v flag.
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprint(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
	}
	return nil
}

// options holds the parsed command line.
type options struct {
	interactive bool
	disasm      bool
	trace       bool
	output      string
	serve       bool
	lsp         bool
	remote      string
	configDir   string
	stackLimit  int
	verbose     verbosity
	args        []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("lox", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.BoolVar(&opts.interactive, "i", false, "Start interactive REPL")
	fs.BoolVar(&opts.disasm, "disasm", false, "Print the chunk listing instead of running it")
	fs.BoolVar(&opts.trace, "trace", false, "Trace stack and instructions to stderr while running")
	fs.StringVar(&opts.output, "o", "", "Compile to a .loxc file instead of running")
	fs.BoolVar(&opts.serve, "serve", false, "Start the evaluation server (Connect HTTP/JSON + gRPC)")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&opts.remote, "remote", "", "Evaluate on a running server at host:port")
	fs.StringVar(&opts.configDir, "config", "", "Directory to search for "+manifest.FileName+" (default: current directory)")
	fs.IntVar(&opts.stackLimit, "stack-limit", 0, "Operand stack capacity (default from config)")
	fs.Var(&opts.verbose, "v", "Verbose logging (repeat for more)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lox [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs a Lox expression. Without a file, starts the REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  lox                        # Start REPL\n")
		fmt.Fprintf(stderr, "  lox calc.lox               # Compile and run\n")
		fmt.Fprintf(stderr, "  lox -disasm calc.lox       # Show bytecode\n")
		fmt.Fprintf(stderr, "  lox -o calc.loxc calc.lox  # Compile only\n")
		fmt.Fprintf(stderr, "  lox calc.loxc              # Run precompiled chunk\n")
		fmt.Fprintf(stderr, "  lox -serve                 # Start evaluation server\n")
		fmt.Fprintf(stderr, "  lox -remote localhost:9090 calc.lox\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()
	if len(opts.args) > 1 {
		fs.Usage()
		return nil, errors.New("at most one file may be given")
	}
	return opts, nil
}

// loadConfig finds lox.toml from dir upwards, falling back to defaults.
func loadConfig(dir string) (*manifest.Manifest, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(dir)
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, extra verbosity) {
	level := m.Log.Verbosity + int(extra)
	if path := m.LogFilePath(); path != "" {
		commonlog.Configure(level, &path)
	} else {
		commonlog.Configure(level, nil)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	m, err := loadConfig(opts.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	configureLogging(m, opts.verbose)
	if m.Dir != "" {
		log.Debugf("using configuration from %s", filepath.Join(m.Dir, manifest.FileName))
	}

	stackLimit := m.VM.StackLimit
	if opts.stackLimit > 0 {
		stackLimit = opts.stackLimit
	}
	trace := opts.trace || m.VM.Trace

	var chunkCache *cache.Cache
	if m.Cache.Enabled {
		chunkCache, err = cache.Open(m.CachePath())
		if err != nil {
			fmt.Fprintf(stderr, "Warning: bytecode cache disabled: %v\n", err)
			chunkCache = nil
		} else {
			defer chunkCache.Close()
		}
	}

	switch {
	case opts.serve:
		return runServer(m, stackLimit, trace, chunkCache, stderr)
	case opts.lsp:
		return runLSP(m, stackLimit, stderr)
	case opts.remote != "":
		return runRemote(opts, stdin, stdout, stderr)
	}

	if opts.interactive || len(opts.args) == 0 {
		repl := newREPL(stdin, stdout, stderr, stackLimit, trace)
		repl.Run()
		return exitOK
	}

	fc := &fileCommand{
		path:       opts.args[0],
		output:     opts.output,
		disasm:     opts.disasm,
		trace:      trace,
		stackLimit: stackLimit,
		cache:      chunkCache,
		stdout:     stdout,
		stderr:     stderr,
	}
	return fc.run()
}

// fileCommand compiles, lists or runs a single source or chunk file.
type fileCommand struct {
	path       string
	output     string
	disasm     bool
	trace      bool
	stackLimit int
	cache      *cache.Cache
	stdout     io.Writer
	stderr     io.Writer
}

func (fc *fileCommand) run() int {
	data, err := os.ReadFile(fc.path)
	if err != nil {
		fmt.Fprintf(fc.stderr, "Error: %v\n", err)
		return exitError
	}

	chunk, result := fc.load(data)
	if chunk == nil {
		return result.ExitCode()
	}

	if fc.output != "" {
		return fc.write(chunk)
	}
	if fc.disasm {
		fmt.Fprint(fc.stdout, bytecode.Disassemble(chunk, filepath.Base(fc.path)))
		return exitOK
	}

	vmOpts := []vm.Option{
		vm.WithStdout(fc.stdout),
		vm.WithStderr(fc.stderr),
		vm.WithStackLimit(fc.stackLimit),
	}
	if fc.trace {
		vmOpts = append(vmOpts, vm.WithTrace(fc.stderr))
	}
	return vm.New(vmOpts...).InterpretChunk(chunk).ExitCode()
}

// load returns the chunk for data, or nil and the result to exit with.
func (fc *fileCommand) load(data []byte) (*bytecode.Chunk, vm.InterpretResult) {
	if strings.HasSuffix(fc.path, bytecode.FileExtension) {
		chunk, err := bytecode.Unmarshal(data)
		if err != nil {
			fmt.Fprintf(fc.stderr, "Error: %s: %v\n", fc.path, err)
			return nil, vm.InterpretCompileError
		}
		return chunk, vm.InterpretOK
	}

	source := string(data)
	if strings.TrimSpace(source) == "" {
		return nil, vm.InterpretNoOp
	}

	var chunk *bytecode.Chunk
	var err error
	if fc.cache != nil {
		var hit bool
		chunk, hit, err = fc.cache.GetOrCompile(context.Background(), source, compiler.Compile)
		if hit {
			log.Debugf("cache hit for %s", fc.path)
		}
	} else {
		chunk, err = compiler.Compile(source)
	}
	if err != nil {
		fmt.Fprintln(fc.stderr, err)
		return nil, vm.InterpretCompileError
	}
	return chunk, vm.InterpretOK
}

func (fc *fileCommand) write(chunk *bytecode.Chunk) int {
	data, err := bytecode.Marshal(chunk)
	if err != nil {
		fmt.Fprintf(fc.stderr, "Error: %v\n", err)
		return exitError
	}
	if err := os.WriteFile(fc.output, data, 0o644); err != nil {
		fmt.Fprintf(fc.stderr, "Error: %v\n", err)
		return exitError
	}
	log.Infof("wrote %s (%d bytes)", fc.output, len(data))
	return exitOK
}

func runServer(m *manifest.Manifest, stackLimit int, trace bool, c *cache.Cache, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.ServerOption{
		server.WithWorkers(m.Server.Workers),
		server.WithStackLimit(stackLimit),
		server.WithTrace(trace),
	}
	if c != nil {
		opts = append(opts, server.WithCache(c))
	}
	srv := server.New(opts...)
	defer srv.Stop()

	if err := srv.ListenAndServe(ctx, m.Server.HTTPAddr, m.Server.GRPCAddr); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return exitError
	}
	return exitOK
}

func runLSP(m *manifest.Manifest, stackLimit int, stderr io.Writer) int {
	pool := server.NewWorkerPool(m.Server.Workers)
	defer pool.Stop()

	if err := server.NewLSP(pool, stackLimit).Run(); err != nil {
		fmt.Fprintf(stderr, "LSP error: %v\n", err)
		return exitError
	}
	return exitOK
}
