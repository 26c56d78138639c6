package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/notekit/notemcp/internal/jsonrpc"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

type recordingAuditor struct {
	lines []string
}

func (a *recordingAuditor) Info(content, headerAddr, socketAddr string) {
	a.lines = append(a.lines, content)
}

func testEngine(t *testing.T, audit Auditor) *Engine {
	t.Helper()
	type greetArgs struct {
		Name string `json:"name"`
	}
	reg := toolkit.NewRegistry(nil)
	err := reg.RegisterAll(context.Background(), toolkit.TierAllowAll,
		toolkit.ProviderFunc(func(ctx context.Context) ([]toolkit.Tool, error) {
			return []toolkit.Tool{
				toolkit.NewTool("greet", func(ctx context.Context, args greetArgs) (*mcp.CallToolResult, error) {
					return toolkit.TextResult("hello " + args.Name), nil
				}, toolkit.WithReadOnly(true)),
				toolkit.NewTool("panicky", func(ctx context.Context, args struct{}) (*mcp.CallToolResult, error) {
					panic("boom")
				}),
			}, nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	return New(mcp.ImplementationInfo{Name: "notemcp", Version: "1.0.0"}, "", reg, audit, nil)
}

func request(t *testing.T, id any, method string, params any) *jsonrpc.Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	return &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         method,
		Params:         raw,
		ID:             jsonrpc.NewRequestID(id),
	}
}

func initialize(t *testing.T, h *SessionHandle) {
	t.Helper()
	resp, err := h.Dispatch(context.Background(), request(t, 1, "initialize", mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "test", Version: "0.0.1"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
}

func TestInitializeHandshake(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")

	resp, err := h.Dispatch(context.Background(), request(t, 1, "initialize", mcp.InitializeRequest{
		ProtocolVersion: "2025-03-26",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.ProtocolVersion != "2025-03-26" {
		t.Fatalf("supported client version should echo, got %q", res.ProtocolVersion)
	}
	if res.ServerInfo.Name != "notemcp" {
		t.Fatalf("unexpected server info %+v", res.ServerInfo)
	}
	if res.Capabilities.Tools == nil {
		t.Fatal("tools capability must be advertised")
	}
}

func TestInitializeUnknownVersionOffersLatest(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	resp, _ := h.Dispatch(context.Background(), request(t, 1, "initialize", mcp.InitializeRequest{
		ProtocolVersion: "1999-01-01",
	}))
	var res mcp.InitializeResult
	json.Unmarshal(resp.Result, &res)
	if res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("expected latest version, got %q", res.ProtocolVersion)
	}
}

func TestDoubleInitializeRejected(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "initialize", mcp.InitializeRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid-request error, got %+v", resp)
	}
}

func TestRequestBeforeInitialize(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	resp, err := h.Dispatch(context.Background(), request(t, 1, "tools/list", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid-request error, got %+v", resp)
	}
}

func TestToolsList(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "tools/list", nil))
	if err != nil {
		t.Fatal(err)
	}
	var res mcp.ListToolsResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", res.Tools)
	}
}

func TestToolsCall(t *testing.T) {
	audit := &recordingAuditor{}
	h := testEngine(t, audit).NewHandle("203.0.113.7", "10.0.0.2")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "tools/call", map[string]any{
		"name":      "greet",
		"arguments": map[string]any{"name": "world"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.IsError || res.Content[0].Text != "hello world" {
		t.Fatalf("unexpected result %+v", res)
	}

	if len(audit.lines) != 1 {
		t.Fatalf("expected one audit line, got %v", audit.lines)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "tools/call", map[string]any{
		"name": "no_such_tool",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp)
	}
}

func TestToolPanicBecomesToolError(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "tools/call", map[string]any{
		"name": "panicky",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("panic must not surface as transport error: %+v", resp.Error)
	}
	var res mcp.CallToolResult
	json.Unmarshal(resp.Result, &res)
	if !res.IsError {
		t.Fatal("expected IsError result for panicking tool")
	}
}

func TestPing(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "ping", nil))
	if err != nil || resp.Error != nil {
		t.Fatalf("ping failed: %v %+v", err, resp)
	}
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	req := &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         "notifications/initialized",
	}
	resp, err := h.Dispatch(context.Background(), req)
	if err != nil || resp != nil {
		t.Fatalf("notification must be swallowed, got %v %v", resp, err)
	}
}

func TestUnknownMethod(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)

	resp, err := h.Dispatch(context.Background(), request(t, 2, "resources/list", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestClosedHandleRejectsDispatch(t *testing.T) {
	h := testEngine(t, nil).NewHandle("h", "s")
	initialize(t, h)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Dispatch(context.Background(), request(t, 2, "ping", nil)); err == nil {
		t.Fatal("expected error from closed handle")
	}
}
