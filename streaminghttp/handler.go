// Package streaminghttp serves the tool-calling protocol over streaming
// HTTP. Each POST carries one JSON-RPC payload; requests on an established
// session are answered over a server-sent event stream. The handler owns
// request classification (new session vs continuing session), delegates
// credential checks to the auth gateway, and address validation to the
// session store.
package streaminghttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/notekit/notemcp/auth"
	"github.com/notekit/notemcp/internal/engine"
	"github.com/notekit/notemcp/internal/jsonrpc"
	"github.com/notekit/notemcp/internal/logctx"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/sessions"
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

// Handler is the HTTP front of the server. It exposes POST/DELETE /mcp for
// protocol traffic and GET /health for liveness probes.
type Handler struct {
	log   *slog.Logger
	eng   *engine.Engine
	store *sessions.Store
	gw    *auth.Gateway
	mux   *http.ServeMux
}

// New wires the dispatcher. path is the protocol endpoint, normally "/mcp".
func New(path string, eng *engine.Engine, store *sessions.Store, gw *auth.Gateway, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{log: log, eng: eng, store: store, gw: gw, mux: http.NewServeMux()}
	h.mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePost)
	h.mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGet)
	h.mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDelete)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:    uuid.NewString(),
		Method:       r.Method,
		UserAgent:    r.UserAgent(),
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		Path:         r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// handlePost handles protocol traffic: session establishment when no session
// header is present, payload routing otherwise.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "http.content_type.unsupported")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "http.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "http.json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported on this transport")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	headerAddr, socketAddr := addressPair(r)

	if sessID := r.Header.Get(mcpSessionIDHeader); sessID != "" {
		h.handleContinuation(ctx, w, wf, r, &msg, sessID, headerAddr, socketAddr, start)
		return
	}

	// No session yet: the only acceptable payload is an initialize request,
	// and it must clear the authentication gateway first.
	req := msg.AsRequest()
	if req == nil || mcp.Method(req.Method) != mcp.InitializeMethod {
		writeJSONError(w, http.StatusBadRequest, "no session to continue; expected initialize request")
		h.log.InfoContext(ctx, "session.initialize.expected")
		return
	}

	decision := h.gw.Authenticate(ctx, r)
	if decision.Outcome == auth.OutcomeRejected {
		writeJSONError(w, decision.Status, decision.Reason)
		h.log.InfoContext(ctx, "auth.reject",
			slog.Int("status", decision.Status),
			slog.String("reason", decision.Reason),
		)
		return
	}

	handle := h.eng.NewHandle(headerAddr, socketAddr)
	resp, err := handle.Dispatch(ctx, req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to initialize session")
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return
	}

	if resp.Error == nil {
		sess := h.store.Create(headerAddr, socketAddr, decision.Method, decision.Principal, handle)
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
			SessionID:  sess.ID,
			AuthMethod: sess.AuthMethod,
			Principal:  sess.Principal,
			Origin:     sess.Origin,
			ProxyAddr:  sess.ProxyAddr,
		})
		w.Header().Set(mcpSessionIDHeader, sess.ID)

		var initRes mcp.InitializeResult
		if err := json.Unmarshal(resp.Result, &initRes); err == nil && initRes.ProtocolVersion != "" {
			w.Header().Set(mcpProtocolVersionHeader, initRes.ProtocolVersion)
		}
		h.log.InfoContext(ctx, "session.open", slog.Duration("dur", time.Since(start)))
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "session.initialize.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) handleContinuation(ctx context.Context, w http.ResponseWriter, wf *lockedWriteFlusher, r *http.Request, msg *jsonrpc.AnyMessage, sessID, headerAddr, socketAddr string, start time.Time) {
	sess, status := h.store.Resume(sessID, headerAddr, socketAddr)
	switch status {
	case sessions.ResumeUnknown:
		writeJSONError(w, http.StatusBadRequest, "unknown session")
		h.log.InfoContext(ctx, "session.resume.miss", slog.String("sess_id", sessID))
		return
	case sessions.ResumeHijacked:
		writeProtocolError(w, http.StatusNotFound, jsonrpc.ErrorCodeServerError,
			"session address mismatch; session terminated")
		h.log.WarnContext(ctx, "session.resume.hijack", slog.String("sess_id", sessID))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:  sess.ID,
		AuthMethod: sess.AuthMethod,
		Principal:  sess.Principal,
		Origin:     sess.Origin,
		ProxyAddr:  sess.ProxyAddr,
	})

	req := msg.AsRequest()
	if req == nil {
		// Client-to-server responses have no routing target here; accept and
		// drop them.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if req.IsNotification() {
		if _, err := sess.Handle().Dispatch(ctx, req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "session closed")
			h.log.InfoContext(ctx, "session.dispatch.closed", slog.String("err", err.Error()))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	resp, err := sess.Handle().Dispatch(ctx, req)
	if err != nil {
		// The handle lost a race with removal; nothing more to stream.
		h.log.InfoContext(ctx, "session.dispatch.closed", slog.String("err", err.Error()))
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "jsonrpc.response.encode.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, body); err != nil {
		h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// handleGet exists so clients probing for a server-initiated stream get a
// protocol-shaped refusal instead of a bare 404 from the mux.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	writeProtocolError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, "Method not allowed.")
}

// handleDelete terminates a session explicitly.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session header")
		return
	}
	if !h.store.Remove(sessID) {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		h.log.InfoContext(ctx, "session.delete.miss", slog.String("sess_id", sessID))
		return
	}
	h.log.InfoContext(ctx, "session.delete.ok", slog.String("sess_id", sessID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

// addressPair extracts the two independently observed source addresses: the
// forwarding header verbatim and the TCP peer host. The peer port is dropped
// because it differs per connection and would break address pinning.
func addressPair(r *http.Request) (headerAddr, socketAddr string) {
	headerAddr = r.Header.Get("X-Forwarded-For")
	socketAddr = r.RemoteAddr
	if host, _, err := net.SplitHostPort(socketAddr); err == nil {
		socketAddr = host
	}
	return headerAddr, socketAddr
}

// writeJSONError writes a plain HTTP-level error body. Used for transport
// failures that happen before a JSON-RPC exchange is underway.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
		},
	})
}

// writeProtocolError writes a JSON-RPC shaped error body with a null id, for
// conditions the protocol expects to see in that form.
func writeProtocolError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&jsonrpc.Response{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Error:          &jsonrpc.Error{Code: code, Message: msg},
		ID:             jsonrpc.NewRequestID(nil),
	})
}

// writeSSEEvent frames one payload as a server-sent event and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, payload []byte) error {
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write sse data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("write sse payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write sse frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}

// lockedWriteFlusher serializes writes to the response stream and refuses
// them once the request context is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher

	ctx context.Context
	mu  sync.Mutex
}

func (wf *lockedWriteFlusher) Write(p []byte) (int, error) {
	if err := wf.ctx.Err(); err != nil {
		return 0, err
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if err := wf.ctx.Err(); err != nil {
		return 0, err
	}
	return wf.Writer.Write(p)
}

func (wf *lockedWriteFlusher) Flush() {
	if wf.ctx.Err() != nil {
		return
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if wf.ctx.Err() != nil {
		return
	}
	wf.Flusher.Flush()
}
