package tools

import (
	"context"

	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// semanticTopK is how many matches one semantic query returns.
const semanticTopK = 5

// SemanticSearchProvider exposes the external index service's semantic
// query. It contributes no tools when the service is not configured or not
// reachable at registration time.
type SemanticSearchProvider struct {
	deps *Deps
}

type semanticArgs struct {
	Question string `json:"question" jsonschema:"description=The question or topic to search indexed notes for"`
}

func (p *SemanticSearchProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	if p.deps.Index == nil {
		return nil, nil
	}
	if !p.deps.Index.Healthy(ctx) {
		p.deps.log().Warn("index.unreachable, semantic search tool not registered")
		return nil, nil
	}
	return []toolkit.Tool{
		toolkit.NewTool("kb_semantic_search", p.query,
			toolkit.WithTitle("Semantic Search"),
			toolkit.WithDescription("Search the user's indexed notes by meaning rather than keywords. Only documents the user explicitly indexed are searched, not the whole workspace."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *SemanticSearchProvider) query(ctx context.Context, args semanticArgs) (*mcp.CallToolResult, error) {
	matches, err := p.deps.Index.Query(ctx, args.Question, semanticTopK)
	if err != nil {
		return toolkit.Errorf("The semantic search service could not be reached: %v", err), nil
	}
	if len(matches) == 0 {
		return toolkit.TextResult("No indexed notes matched the question."), nil
	}
	return jsonResult(matches), nil
}
