package toolkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notekit/notemcp/mcp"
)

// Tier is the write-safety policy applied to the tool set at load time.
type Tier string

const (
	// TierAllowAll exposes every registered tool.
	TierAllowAll Tier = "allow_all"
	// TierAllowNonDestructive hides tools that can irreversibly alter
	// existing content.
	TierAllowNonDestructive Tier = "allow_non_destructive"
	// TierDenyAll hides every tool that writes at all.
	TierDenyAll Tier = "deny_all"
)

// ParseTier validates a tier name from configuration.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierAllowAll, TierAllowNonDestructive, TierDenyAll:
		return Tier(s), nil
	case "":
		return TierAllowAll, nil
	default:
		return "", fmt.Errorf("unknown write policy %q", s)
	}
}

// ErrToolNotFound is returned when a call names a tool outside the exposed set.
var ErrToolNotFound = errors.New("toolkit: tool not found")

// Registry holds the exposed tool set. Providers are consulted once at load;
// the policy filter is applied once right after. The set never changes while
// the server runs, so lookups are lock-free.
type Registry struct {
	log      *slog.Logger
	tools    []mcp.Tool
	handlers map[string]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log, handlers: make(map[string]Handler)}
}

// RegisterAll loads every provider's tools, applies the tier filter, and
// freezes the set. Duplicate names are rejected.
func (r *Registry) RegisterAll(ctx context.Context, tier Tier, providers ...Provider) error {
	for _, p := range providers {
		tools, err := p.GetTools(ctx)
		if err != nil {
			return fmt.Errorf("tool provider load failed: %w", err)
		}
		for _, t := range tools {
			name := t.Descriptor.Name
			if name == "" {
				return errors.New("tool with empty name")
			}
			if _, exists := r.handlers[name]; exists {
				return fmt.Errorf("duplicate tool name %q", name)
			}
			if !tierAllows(tier, t.Descriptor) {
				r.log.Info("tool.filtered",
					slog.String("name", name),
					slog.String("tier", string(tier)),
				)
				continue
			}
			r.tools = append(r.tools, t.Descriptor)
			r.handlers[name] = t.Handler
		}
	}
	r.log.Info("tools.loaded", slog.Int("count", len(r.tools)), slog.String("tier", string(tier)))
	return nil
}

// tierAllows applies the write-safety policy to one descriptor.
// deny_all drops tools that declare readOnly=false or destructive=true;
// allow_non_destructive drops only destructive=true.
func tierAllows(tier Tier, t mcp.Tool) bool {
	var readOnlyFalse, destructiveTrue bool
	if a := t.Annotations; a != nil {
		readOnlyFalse = a.ReadOnlyHint != nil && !*a.ReadOnlyHint
		destructiveTrue = a.DestructiveHint != nil && *a.DestructiveHint
	}

	switch tier {
	case TierDenyAll:
		return !readOnlyFalse && !destructiveTrue
	case TierAllowNonDestructive:
		return !destructiveTrue
	default:
		return true
	}
}

// Descriptors returns the exposed tool descriptors.
func (r *Registry) Descriptors() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Call dispatches an invocation to the named tool.
func (r *Registry) Call(ctx context.Context, name string, args []byte) (*mcp.CallToolResult, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return h(ctx, args)
}
