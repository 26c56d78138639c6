package streaminghttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/notekit/notemcp/auth"
	"github.com/notekit/notemcp/internal/engine"
	"github.com/notekit/notemcp/internal/jsonrpc"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/sessions"
	"github.com/notekit/notemcp/toolkit"
)

func newTestServer(t *testing.T, creds func() auth.Credentials) *httptest.Server {
	t.Helper()

	type echoArgs struct {
		Text string `json:"text"`
	}
	reg := toolkit.NewRegistry(nil)
	err := reg.RegisterAll(context.Background(), toolkit.TierAllowAll,
		toolkit.ProviderFunc(func(ctx context.Context) ([]toolkit.Tool, error) {
			return []toolkit.Tool{
				toolkit.NewTool("echo", func(ctx context.Context, args echoArgs) (*mcp.CallToolResult, error) {
					return toolkit.TextResult(args.Text), nil
				}, toolkit.WithReadOnly(true)),
			}, nil
		}))
	if err != nil {
		t.Fatal(err)
	}

	eng := engine.New(mcp.ImplementationInfo{Name: "notemcp", Version: "1.0.0"}, "", reg, nil, nil)
	store := sessions.NewStore(nil)
	if creds == nil {
		creds = func() auth.Credentials { return auth.Credentials{} }
	}
	gw := auth.NewGateway(creds, nil, nil)

	srv := httptest.NewServer(New("/mcp", eng, store, gw, nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test","version":"0.0.1"}}}`

func openSession(t *testing.T, srv *httptest.Server, header map[string]string) string {
	t.Helper()
	resp := postJSON(t, srv, initializeBody, header)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("initialize returned %d: %s", resp.StatusCode, b)
	}
	sessID := resp.Header.Get("Mcp-Session-Id")
	if sessID == "" {
		t.Fatal("initialize response missing session header")
	}
	return sessID
}

// readSSEResponse scans a text/event-stream body for the first data frame and
// decodes it as a JSON-RPC response.
func readSSEResponse(t *testing.T, body io.Reader) *jsonrpc.Response {
	t.Helper()
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var resp jsonrpc.Response
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &resp); err != nil {
			t.Fatalf("bad SSE payload %q: %v", line, err)
		}
		return &resp
	}
	t.Fatal("no data frame in stream")
	return nil
}

func TestInitializeCreatesSession(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv, initializeBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got == "" {
		t.Fatal("expected session header on initialize response")
	}
	if got := resp.Header.Get("Mcp-Protocol-Version"); got != "2025-06-18" {
		t.Fatalf("unexpected protocol version header %q", got)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}

	var rpc jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		t.Fatal(err)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(rpc.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.ServerInfo.Name != "notemcp" {
		t.Fatalf("unexpected server info %+v", res.ServerInfo)
	}
}

func TestPostWithoutSessionMustBeInitialize(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestContinuingRequestStreamsResponse(t *testing.T) {
	srv := newTestServer(t, nil)
	sessID := openSession(t, srv, nil)

	resp := postJSON(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}

	rpc := readSSEResponse(t, resp.Body)
	var res mcp.ListToolsResult
	if err := json.Unmarshal(rpc.Result, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tool list %+v", res.Tools)
	}
}

func TestToolCallOverSession(t *testing.T) {
	srv := newTestServer(t, nil)
	sessID := openSession(t, srv, nil)

	body := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"ping"}}}`
	resp := postJSON(t, srv, body, map[string]string{"Mcp-Session-Id": sessID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	rpc := readSSEResponse(t, resp.Body)
	var res mcp.CallToolResult
	if err := json.Unmarshal(rpc.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.IsError || len(res.Content) != 1 || res.Content[0].Text != "ping" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": "no-such-session"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAddressMismatchTearsDownSession(t *testing.T) {
	srv := newTestServer(t, nil)
	sessID := openSession(t, srv, map[string]string{"X-Forwarded-For": "1.2.3.4"})

	// Same session id from a different forwarded address: hijack.
	resp := postJSON(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessID, "X-Forwarded-For": "5.6.7.8"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var rpc jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		t.Fatal(err)
	}
	if rpc.Error == nil || rpc.Error.Code != jsonrpc.ErrorCodeServerError {
		t.Fatalf("expected protocol-shaped error body, got %+v", rpc)
	}

	// The session is gone even for the original address.
	resp = postJSON(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessID, "X-Forwarded-For": "1.2.3.4"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 after teardown, got %d", resp.StatusCode)
	}
}

func TestDeleteTerminatesSession(t *testing.T) {
	srv := newTestServer(t, nil)
	sessID := openSession(t, srv, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sessID)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// Idempotency is the store's job; the transport reports the miss.
	resp2, err := srv.Client().Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", resp2.StatusCode)
	}

	resp3 := postJSON(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessID})
	if resp3.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 after delete, got %d", resp3.StatusCode)
	}
}

func TestGetMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(b, []byte(`"jsonrpc":"2.0"`)) || !bytes.Contains(b, []byte(`"id":null`)) {
		t.Fatalf("expected protocol-shaped body, got %s", b)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ok" {
		t.Fatalf("unexpected body %q", b)
	}
}

func TestNotificationAccepted(t *testing.T) {
	srv := newTestServer(t, nil)
	sessID := openSession(t, srv, nil)

	resp := postJSON(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		map[string]string{"Mcp-Session-Id": sessID})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestBatchRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv, fmt.Sprintf("[%s]", initializeBody), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	srv := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestBearerGatesNewSessions(t *testing.T) {
	const secret = "s3cr3t"
	const installation = "sys-1"
	creds := func() auth.Credentials {
		return auth.Credentials{
			BearerHash:     auth.HashSecret(secret, installation),
			InstallationID: installation,
		}
	}
	srv := newTestServer(t, creds)

	resp := postJSON(t, srv, initializeBody, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv, initializeBody, map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong secret, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv, initializeBody, map[string]string{"Authorization": "Bearer " + secret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for valid secret, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Mcp-Session-Id") == "" {
		t.Fatal("expected session header")
	}
}
