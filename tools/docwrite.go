package tools

import (
	"context"

	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// DocWriteProvider exposes document-level writes.
type DocWriteProvider struct {
	deps *Deps
}

type appendToDocArgs struct {
	ID              string `json:"id" jsonschema:"description=The unique identifier of the document to append to"`
	MarkdownContent string `json:"markdownContent" jsonschema:"description=The Markdown-formatted text to append to the end of the document"`
}

func (p *DocWriteProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_append_markdown_to_doc", p.appendToDoc,
			toolkit.WithTitle("Append To Document"),
			toolkit.WithDescription("Append Markdown content to the end of a document by its ID."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
	}, nil
}

func (p *DocWriteProvider) appendToDoc(ctx context.Context, args appendToDocArgs) (*mcp.CallToolResult, error) {
	if !validID(args.ID) {
		return toolkit.Errorf("Invalid document ID format."), nil
	}
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if dbItem == nil || !dbItem.IsDocument() {
		return toolkit.Errorf("Failed to append to document: the provided ID is not a document's ID."), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ID, dbItem); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	newID, err := p.deps.Kernel.AppendBlock(ctx, args.ID, args.MarkdownContent)
	if err != nil {
		return toolkit.Errorf("Failed to append to the document: %v", err), nil
	}
	p.deps.enqueueIndex(args.ID)
	return toolkit.TextResult("Successfully appended, the block ID for the new content is " + newID), nil
}
