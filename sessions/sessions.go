// Package sessions holds the in-memory session store for the streaming HTTP
// transport. Session state never touches disk; a restart forces every client
// back through authentication and the initialize handshake.
package sessions

import (
	"context"
	"time"

	"github.com/notekit/notemcp/internal/jsonrpc"
)

// Handle is the per-session protocol endpoint bound at creation time. The
// transport forwards every payload for the session to its handle.
type Handle interface {
	// Dispatch processes one request or notification. A nil response means
	// the payload was a notification and produced no reply.
	Dispatch(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	// Close releases handle resources. It must be safe to call once.
	Close() error
}

// Session is a live transport session. Exported fields are immutable after
// creation; lastSeen is guarded by the owning store's mutex.
type Session struct {
	ID         string
	Origin     string
	ProxyAddr  string
	AuthMethod string
	Principal  string
	CreatedAt  time.Time

	lastSeen time.Time
	handle   Handle
}

// Handle returns the protocol endpoint bound to this session.
func (s *Session) Handle() Handle {
	return s.handle
}
