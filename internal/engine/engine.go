// Package engine implements the per-session protocol state machine. The
// transport decodes and routes payloads; the engine owns the handshake and
// the tools surface.
package engine

import (
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/notekit/notemcp/internal/jsonrpc"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// Auditor receives connection-scoped audit lines. Satisfied by
// *auditlog.Logger.
type Auditor interface {
	Info(content, headerAddr, socketAddr string)
}

// nopAuditor drops audit lines; used when auditing is disabled.
type nopAuditor struct{}

func (nopAuditor) Info(content, headerAddr, socketAddr string) {}

// Engine holds the state shared by every session: server identity and the
// frozen tool set.
type Engine struct {
	serverInfo   mcp.ImplementationInfo
	instructions string
	registry     *toolkit.Registry
	audit        Auditor
	log          *slog.Logger
}

// New builds an engine serving the given registry.
func New(serverInfo mcp.ImplementationInfo, instructions string, registry *toolkit.Registry, audit Auditor, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if audit == nil {
		audit = nopAuditor{}
	}
	return &Engine{
		serverInfo:   serverInfo,
		instructions: instructions,
		registry:     registry,
		audit:        audit,
		log:          log,
	}
}

// negotiateVersion echoes a supported client version or offers the latest.
func negotiateVersion(requested string) string {
	if slices.Contains(mcp.SupportedProtocolVersions, requested) {
		return requested
	}
	return mcp.LatestProtocolVersion
}

func decodeParams[T any](params json.RawMessage) (*T, *jsonrpc.Error) {
	var v T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &v); err != nil {
			return nil, &jsonrpc.Error{
				Code:    jsonrpc.ErrorCodeInvalidParams,
				Message: "invalid params: " + err.Error(),
			}
		}
	}
	return &v, nil
}
