package tools

import (
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// defaultReadLimit bounds one read so huge documents page instead of
// flooding the caller.
const defaultReadLimit = 10000

// DocReadProvider exposes document and block content reads.
type DocReadProvider struct {
	deps *Deps
}

type readDocArgs struct {
	ID     string `json:"id" jsonschema:"description=The unique identifier of the document or block"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=The starting character offset for partial content reading (for pagination of large docs)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=The maximum number of characters to return in this request"`
}

type kramdownArgs struct {
	ID string `json:"id" jsonschema:"description=The unique identifier of the block"`
}

func (p *DocReadProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_read_doc_markdown", p.readDoc,
			toolkit.WithTitle("Read Document Content"),
			toolkit.WithDescription("Retrieve the markdown content of a document or block by its ID, with offset/limit pagination for large documents."),
			toolkit.WithReadOnly(true),
		),
		toolkit.NewTool("kb_get_block_kramdown", p.getKramdown,
			toolkit.WithTitle("Get Block Kramdown"),
			toolkit.WithDescription("Retrieve a block's full kramdown source, preserving formatting attributes and IDs. Read a block this way before updating it so the update keeps its attributes. Accepts non-document blocks only."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *DocReadProvider) readDoc(ctx context.Context, args readDocArgs) (*mcp.CallToolResult, error) {
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

	doc, err := p.deps.Kernel.ExportMarkdown(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	content := doc.Content
	// The exporter prepends the document title as a heading; a block read
	// should not carry it.
	if !dbItem.IsDocument() {
		content = stripLeadingHeading(content)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	offset := args.Offset
	if offset < 0 {
		offset = 0
	}

	runes := []rune(content)
	total := len(runes)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return jsonResult(map[string]any{
		"content":     string(runes[offset:end]),
		"offset":      offset,
		"limit":       limit,
		"hasMore":     end < total,
		"totalLength": total,
	}), nil
}

func (p *DocReadProvider) getKramdown(ctx context.Context, args kramdownArgs) (*mcp.CallToolResult, error) {
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if dbItem == nil {
		return toolkit.Errorf("Invalid block ID. Please check if the ID exists and is correct."), nil
	}
	if dbItem.IsDocument() {
		return toolkit.Errorf("This tool only reads the kramdown of non-document blocks; it does not accept a whole document."), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ID, dbItem); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	kd, err := p.deps.Kernel.GetBlockKramdown(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"kramdown": kd.Kramdown}), nil
}

// stripLeadingHeading drops a heading at the very start of md, including its
// trailing newlines.
func stripLeadingHeading(md string) string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	h, ok := doc.FirstChild().(*ast.Heading)
	if !ok {
		return md
	}
	lines := h.Lines()
	if lines.Len() == 0 {
		return md
	}
	end := lines.At(lines.Len() - 1).Stop
	for end < len(src) && (src[end] == '\n' || src[end] == '\r') {
		end++
	}
	return string(src[end:])
}
