package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notekit/notemcp/internal/jsonrpc"
	"github.com/notekit/notemcp/internal/logctx"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// maxAuditArgLen bounds tool arguments in audit lines.
const maxAuditArgLen = 200

// SessionHandle is the engine's per-session endpoint. A mutex serializes
// dispatch so payloads for one session run FIFO; handles for different
// sessions run concurrently.
type SessionHandle struct {
	eng        *Engine
	headerAddr string
	socketAddr string

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// NewHandle creates a handle for a new session. headerAddr is the
// forwarded-for address, socketAddr the TCP peer; both go into audit lines.
func (e *Engine) NewHandle(headerAddr, socketAddr string) *SessionHandle {
	return &SessionHandle{eng: e, headerAddr: headerAddr, socketAddr: socketAddr}
}

// Dispatch processes one payload. Notifications return (nil, nil).
func (h *SessionHandle) Dispatch(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("session handle is closed")
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   "request",
	})

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return h.handleInitialize(ctx, req)
	case mcp.InitializedNotificationMethod, mcp.CancelledNotificationMethod, mcp.ProgressNotificationMethod:
		return nil, nil
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		return h.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		return h.handleToolsCall(ctx, req)
	default:
		if req.IsNotification() {
			// Unknown notifications are swallowed.
			return nil, nil
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method), nil), nil
	}
}

func (h *SessionHandle) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if h.initialized {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest,
			"session already initialized", nil), nil
	}

	params, jerr := decodeParams[mcp.InitializeRequest](req.Params)
	if jerr != nil {
		return jsonrpc.NewErrorResponse(req.ID, jerr.Code, jerr.Message, nil), nil
	}

	h.initialized = true
	h.eng.log.InfoContext(ctx, "session.initialize.ok",
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("protocol_version", params.ProtocolVersion),
	)

	res := &mcp.InitializeResult{
		ProtocolVersion: negotiateVersion(params.ProtocolVersion),
		Capabilities: mcp.ServerCapabilities{
			Tools: &struct {
				ListChanged bool `json:"listChanged"`
			}{ListChanged: false},
		},
		ServerInfo:   h.eng.serverInfo,
		Instructions: h.eng.instructions,
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (h *SessionHandle) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if resp := h.requireInitialized(req); resp != nil {
		return resp, nil
	}
	res := &mcp.ListToolsResult{Tools: h.eng.registry.Descriptors()}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (h *SessionHandle) handleToolsCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if resp := h.requireInitialized(req); resp != nil {
		return resp, nil
	}
	params, jerr := decodeParams[mcp.CallToolRequestReceived](req.Params)
	if jerr != nil {
		return jsonrpc.NewErrorResponse(req.ID, jerr.Code, jerr.Message, nil), nil
	}
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams,
			"tool name is required", nil), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	h.eng.audit.Info(
		fmt.Sprintf("tool call %s args=%s", params.Name, truncate(string(params.Arguments), maxAuditArgLen)),
		h.headerAddr, h.socketAddr,
	)

	result := h.callTool(ctx, params)
	if result == nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams,
			fmt.Sprintf("unknown tool: %s", params.Name), nil), nil
	}
	if result.IsError {
		h.eng.log.WarnContext(ctx, "tool.call.fail")
	}
	return jsonrpc.NewResultResponse(req.ID, result)
}

// callTool runs the tool with panic containment. A nil return means the tool
// does not exist; every other failure becomes a protocol-level error result.
func (h *SessionHandle) callTool(ctx context.Context, params *mcp.CallToolRequestReceived) (result *mcp.CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			h.eng.log.ErrorContext(ctx, "tool.call.panic", slog.Any("panic", r))
			result = toolkit.Errorf("tool %s panicked: %v", params.Name, r)
		}
	}()

	res, err := h.eng.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, toolkit.ErrToolNotFound) {
			return nil
		}
		return toolkit.Errorf("tool %s failed: %v", params.Name, err)
	}
	return res
}

func (h *SessionHandle) requireInitialized(req *jsonrpc.Request) *jsonrpc.Response {
	if h.initialized {
		return nil
	}
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest,
		"session not initialized", nil)
}

// Close marks the handle dead. Safe to call more than once.
func (h *SessionHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
