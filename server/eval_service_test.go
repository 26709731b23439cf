package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ---------------------------------------------------------------------------
// Evaluate: direct handler calls
// ---------------------------------------------------------------------------

func TestEvaluate_Arithmetic(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), sourceReq("3 + 4"))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if field(resp.Msg, "status") != "ok" {
		t.Fatalf("status = %q, want ok", field(resp.Msg, "status"))
	}
	if field(resp.Msg, "value") != "7" {
		t.Errorf("value = %q, want %q", field(resp.Msg, "value"), "7")
	}
	if field(resp.Msg, "output") != "7\n" {
		t.Errorf("output = %q", field(resp.Msg, "output"))
	}
	if resp.Header().Get("X-Request-Id") != field(resp.Msg, "requestId") {
		t.Error("X-Request-Id header does not match requestId field")
	}
}

func TestEvaluate_RuntimeError(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), sourceReq(`"a" * 2`))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if field(resp.Msg, "status") != "runtime-error" {
		t.Errorf("status = %q", field(resp.Msg, "status"))
	}
	texts := diagnosticTexts(resp.Msg)
	if len(texts) != 1 || texts[0] != "Operands must be numbers.\n[line 1] in script" {
		t.Errorf("diagnostics = %q", texts)
	}
}

func TestEvaluate_CompileError(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), sourceReq("(1"))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if field(resp.Msg, "status") != "compile-error" {
		t.Errorf("status = %q", field(resp.Msg, "status"))
	}
	if field(resp.Msg, "value") != "" {
		t.Errorf("value = %q, want empty", field(resp.Msg, "value"))
	}
}

func TestEvaluate_EmptySource(t *testing.T) {
	svc := newTestEvalService()

	_, err := svc.Evaluate(bg(), sourceReq(""))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("error code = %v, want InvalidArgument", connect.CodeOf(err))
	}
}

func TestDisassemble(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Disassemble(bg(), sourceReq("nil"))
	if err != nil {
		t.Fatalf("Disassemble returned error: %v", err)
	}
	want := "== code ==\n0000    1 OP_NIL\n0001    | OP_RETURN\n"
	if got := field(resp.Msg, "listing"); got != want {
		t.Errorf("listing = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Over HTTP
// ---------------------------------------------------------------------------

func newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := newTestEvalService().Handler()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEvaluate_ConnectClient(t *testing.T) {
	srv := newTestHTTPServer(t)

	client := connect.NewClient[wrapperspb.StringValue, structpb.Struct](
		srv.Client(), srv.URL+EvaluateProcedure,
	)
	resp, err := client.CallUnary(bg(), sourceReq("!(1 < 2)"))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if field(resp.Msg, "value") != "false" {
		t.Errorf("value = %q, want false", field(resp.Msg, "value"))
	}
}

func TestEvaluate_ConnectClientInvalidArgument(t *testing.T) {
	srv := newTestHTTPServer(t)

	client := connect.NewClient[wrapperspb.StringValue, structpb.Struct](
		srv.Client(), srv.URL+EvaluateProcedure, connect.WithProtoJSON(),
	)
	_, err := client.CallUnary(bg(), sourceReq(""))
	var cerr *connect.Error
	if !errors.As(err, &cerr) || cerr.Code() != connect.CodeInvalidArgument {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestEvaluate_PlainJSON(t *testing.T) {
	srv := newTestHTTPServer(t)

	// A StringValue is a bare JSON string in the Connect JSON encoding.
	resp, err := srv.Client().Post(srv.URL+EvaluateProcedure, "application/json", strings.NewReader(`"2 * 21"`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["value"] != "42" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["diagnostics"].([]any); !ok {
		t.Errorf("diagnostics = %#v, want a list", body["diagnostics"])
	}
}

func TestDisassemble_PlainJSON(t *testing.T) {
	srv := newTestHTTPServer(t)

	resp, err := srv.Client().Post(srv.URL+DisassembleProcedure, "application/json", strings.NewReader(`"1 == 1"`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	listing, _ := body["listing"].(string)
	if !strings.Contains(listing, "OP_EQUAL") {
		t.Errorf("listing = %q", listing)
	}
}

func TestUnknownProcedure(t *testing.T) {
	srv := newTestHTTPServer(t)

	resp, err := srv.Client().Post(srv.URL+"/lox.v1.EvalService/Nope", "application/json", strings.NewReader(`"1"`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
