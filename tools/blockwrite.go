package tools

import (
	"context"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// BlockWriteProvider exposes block-level insert, prepend, append, and update.
type BlockWriteProvider struct {
	deps *Deps
}

type insertBlockArgs struct {
	Data       string `json:"data" jsonschema:"description=The markdown content of the new block"`
	NextID     string `json:"nextID,omitempty" jsonschema:"description=The ID of the following sibling block anchoring the insert position; highest precedence"`
	PreviousID string `json:"previousID,omitempty" jsonschema:"description=The ID of the preceding sibling block anchoring the insert position"`
	ParentID   string `json:"parentID,omitempty" jsonschema:"description=The ID of the parent block; must be a container block such as a quote or document block (headings are not containers)"`
}

type childBlockArgs struct {
	Data     string `json:"data" jsonschema:"description=The markdown content of the new block"`
	ParentID string `json:"parentID" jsonschema:"description=The ID of the parent block; must be a container block such as a quote or document block"`
}

type updateBlockArgs struct {
	ID   string `json:"id" jsonschema:"description=The ID of the block to update"`
	Data string `json:"data" jsonschema:"description=The new content in kramdown format; plain markdown loses the block's attributes"`
}

func (p *BlockWriteProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_insert_block", p.insertBlock,
			toolkit.WithTitle("Insert Block"),
			toolkit.WithDescription("Insert a new markdown block at a position anchored by one of nextID (the following block), previousID (the preceding block), or parentID (the container block). nextID has the highest precedence."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
		toolkit.NewTool("kb_prepend_block", p.prependBlock,
			toolkit.WithTitle("Prepend Block"),
			toolkit.WithDescription("Insert a new markdown block as the first child of the given container block."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
		toolkit.NewTool("kb_append_block", p.appendBlock,
			toolkit.WithTitle("Append Block"),
			toolkit.WithDescription("Insert a new markdown block as the last child of the given container block."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
		toolkit.NewTool("kb_update_block", p.updateBlock,
			toolkit.WithTitle("Update Block"),
			toolkit.WithDescription("Replace an existing block's content by ID. The content should be kramdown as returned by kb_get_block_kramdown; plain markdown loses the block's attributes."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(true),
			toolkit.WithIdempotent(false),
		),
	}, nil
}

func (p *BlockWriteProvider) insertBlock(ctx context.Context, args insertBlockArgs) (*mcp.CallToolResult, error) {
	for _, anchor := range []string{args.NextID, args.PreviousID, args.ParentID} {
		if anchor == "" {
			continue
		}
		if isNB, err := p.deps.isNotebookID(ctx, anchor); err != nil {
			return nil, err
		} else if isNB {
			return toolkit.Errorf("nextID, previousID, and parentID must be block IDs, not notebook IDs."), nil
		}
	}

	var anchorItem *kernel.Block
	if args.ParentID != "" {
		dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ParentID)
		if err != nil {
			return nil, err
		}
		if dbItem == nil {
			return toolkit.Errorf("Invalid parentID: the specified parent block does not exist."), nil
		}
		if !isContainerType(dbItem.Type) {
			return toolkit.Errorf("Invalid parentID: cannot insert a block under a non-container block."), nil
		}
		anchorItem = dbItem
	}

	anchor := firstNonEmpty(args.NextID, args.PreviousID, args.ParentID)
	if anchor == "" {
		return toolkit.Errorf("One of nextID, previousID, or parentID is required to anchor the insert position."), nil
	}
	if anchorItem == nil {
		var err error
		anchorItem, err = p.deps.Kernel.GetBlockByID(ctx, anchor)
		if err != nil {
			return nil, err
		}
	}
	if anchorItem != nil {
		if excluded, err := p.deps.Filter.BlockExcluded(ctx, anchorItem.ID, anchorItem); err != nil {
			return nil, err
		} else if excluded {
			return toolkit.Errorf(msgExcluded), nil
		}
	}

	newID, err := p.deps.Kernel.InsertBlock(ctx, args.Data, args.NextID, args.PreviousID, args.ParentID)
	if err != nil {
		return toolkit.Errorf("Failed to insert the block: %v", err), nil
	}
	if anchorItem != nil {
		p.deps.enqueueIndex(anchorItem.RootID)
	}
	return toolkit.TextResult("Successfully inserted. The first block ID is " + newID + ". Multiple blocks may have been created depending on the content."), nil
}

func (p *BlockWriteProvider) prependBlock(ctx context.Context, args childBlockArgs) (*mcp.CallToolResult, error) {
	dbItem, res := p.checkParent(ctx, args.ParentID)
	if res != nil {
		return res, nil
	}
	newID, err := p.deps.Kernel.PrependBlock(ctx, args.ParentID, args.Data)
	if err != nil {
		return toolkit.Errorf("Failed to prepend the block: %v", err), nil
	}
	p.deps.enqueueIndex(dbItem.RootID)
	return toolkit.TextResult("Successfully prepended. The first block ID is " + newID + ". Multiple blocks may have been created depending on the content."), nil
}

func (p *BlockWriteProvider) appendBlock(ctx context.Context, args childBlockArgs) (*mcp.CallToolResult, error) {
	dbItem, res := p.checkParent(ctx, args.ParentID)
	if res != nil {
		return res, nil
	}
	newID, err := p.deps.Kernel.AppendBlock(ctx, args.ParentID, args.Data)
	if err != nil {
		return toolkit.Errorf("Failed to append to the block: %v", err), nil
	}
	p.deps.enqueueIndex(dbItem.RootID)
	return toolkit.TextResult("Successfully appended. The first block ID is " + newID + ". Multiple blocks may have been created depending on the content."), nil
}

func (p *BlockWriteProvider) updateBlock(ctx context.Context, args updateBlockArgs) (*mcp.CallToolResult, error) {
	if !validID(args.ID) {
		return toolkit.Errorf("Invalid block ID format."), nil
	}
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if dbItem == nil {
		return toolkit.Errorf("Invalid block ID. Please check if the ID exists and is correct."), nil
	}
	if dbItem.Type == kernel.BlockTypeAttributeView {
		return toolkit.Errorf("Cannot update attribute view (i.e. database) blocks."), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ID, dbItem); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	if err := p.deps.Kernel.UpdateBlock(ctx, args.ID, "markdown", args.Data); err != nil {
		return toolkit.Errorf("Failed to update the block: %v", err), nil
	}
	p.deps.enqueueIndex(dbItem.RootID)
	return toolkit.TextResult("Block updated successfully."), nil
}

// checkParent validates a required container parent. A non-nil result is the
// error to return.
func (p *BlockWriteProvider) checkParent(ctx context.Context, parentID string) (*kernel.Block, *mcp.CallToolResult) {
	if !validID(parentID) {
		return nil, toolkit.Errorf("Invalid parentID format.")
	}
	if isNB, err := p.deps.isNotebookID(ctx, parentID); err != nil {
		return nil, toolkit.Errorf("Failed to check parentID: %v", err)
	} else if isNB {
		return nil, toolkit.Errorf("parentID must be a block ID, not a notebook ID.")
	}
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, parentID)
	if err != nil {
		return nil, toolkit.Errorf("Failed to look up parentID: %v", err)
	}
	if dbItem == nil {
		return nil, toolkit.Errorf("Invalid parentID: the specified parent block does not exist.")
	}
	if !isContainerType(dbItem.Type) {
		return nil, toolkit.Errorf("Invalid parentID: cannot insert a block under a non-container block.")
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, parentID, dbItem); err != nil {
		return nil, toolkit.Errorf("Failed to check exclusion: %v", err)
	} else if excluded {
		return nil, toolkit.Errorf(msgExcluded)
	}
	return dbItem, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
