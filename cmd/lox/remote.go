package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/vm"
)

const remoteTimeout = 30 * time.Second

// runRemote sends the file (or stdin) to a running server and prints the
// response the way a local run would.
func runRemote(opts *options, stdin io.Reader, stdout, stderr io.Writer) int {
	var source []byte
	var err error
	if len(opts.args) > 0 {
		source, err = os.ReadFile(opts.args[0])
	} else {
		source, err = io.ReadAll(stdin)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if strings.TrimSpace(string(source)) == "" {
		return exitOK
	}

	client, err := server.Dial(opts.remote)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer client.Close()

	return interpretRemote(client, string(source), stdout, stderr)
}

func interpretRemote(client *server.RemoteClient, source string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	if err := client.Check(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	resp, err := client.Interpret(ctx, source)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	log.Debugf("remote request %s", resp.GetFields()["requestId"].GetStringValue())
	return printResponse(resp, stdout, stderr)
}

// printResponse writes output and diagnostics from a server response and
// returns the matching exit code.
func printResponse(resp *structpb.Struct, stdout, stderr io.Writer) int {
	fields := resp.GetFields()
	fmt.Fprint(stdout, fields["output"].GetStringValue())
	for _, d := range fields["diagnostics"].GetListValue().GetValues() {
		fmt.Fprintln(stderr, d.GetStructValue().GetFields()["text"].GetStringValue())
	}

	switch fields["status"].GetStringValue() {
	case vm.InterpretOK.String(), vm.InterpretNoOp.String():
		return exitOK
	default:
		return exitError
	}
}
