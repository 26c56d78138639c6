package tools

import (
	"context"

	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// RelationProvider exposes backlink queries.
type RelationProvider struct {
	deps *Deps
}

type backlinksArgs struct {
	ID string `json:"id" jsonschema:"description=The ID of the target document or block; its notebook must be open"`
}

func (p *RelationProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_get_doc_backlinks", p.getBacklinks,
			toolkit.WithTitle("Get Document Backlinks"),
			toolkit.WithDescription("Retrieve the documents that reference the given document or block, with each referencing document's ID, name, notebook ID, and human-readable path."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *RelationProvider) getBacklinks(ctx context.Context, args backlinksArgs) (*mcp.CallToolResult, error) {
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if dbItem == nil {
		return toolkit.Errorf("Invalid document or block ID. Please check if the ID exists and is correct."), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ID, dbItem); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	res, err := p.deps.Kernel.GetBacklinks(ctx, args.ID)
	if err != nil {
		return toolkit.Errorf("Failed to fetch backlinks: %v", err), nil
	}
	if len(res.Backlinks) == 0 {
		return toolkit.TextResult("No documents or blocks referencing the specified ID were found."), nil
	}

	rows := make([]map[string]any, 0, len(res.Backlinks))
	for _, bl := range res.Backlinks {
		if bl.Type != "NodeDocument" {
			continue
		}
		rows = append(rows, map[string]any{
			"name":       bl.Name,
			"id":         bl.ID,
			"notebookId": bl.Box,
			"hpath":      bl.HPath,
		})
	}
	return jsonResult(rows), nil
}
