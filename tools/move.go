package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// MoveProvider exposes structural moves of documents and blocks.
type MoveProvider struct {
	deps *Deps
}

type moveDocsArgs struct {
	IDs  []string `json:"ids" jsonschema:"description=The IDs of the documents to move; supports moving several at once"`
	ToID string   `json:"toId" jsonschema:"description=The target ID. A document ID makes the moved documents its children; a notebook ID moves them to the notebook root"`
}

type moveBlockArgs struct {
	ID                string `json:"id" jsonschema:"description=The ID of the block to move; document blocks cannot be moved with this tool"`
	PreviousID        string `json:"previousId,omitempty" jsonschema:"description=The moved block becomes the next sibling of this block; must not be a document ID"`
	ParentID          string `json:"parentId,omitempty" jsonschema:"description=The moved block becomes the first child of this container block; ignored when previousId is given"`
	MoveWithSubBlocks bool   `json:"moveWithSubBlocks,omitempty" jsonschema:"description=When the moved block is a heading, move its whole subtree along with it. The heading ends up unfolded"`
}

func (p *MoveProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_move_docs_by_id", p.moveDocs,
			toolkit.WithTitle("Move Documents"),
			toolkit.WithDescription("Move one or more documents under a target document, or to a notebook's root."),
			toolkit.WithDestructive(true),
		),
		toolkit.NewTool("kb_move_block", p.moveBlock,
			toolkit.WithTitle("Move Block"),
			toolkit.WithDescription("Move a block (paragraph, heading, super block, table) to a target position given by previousId or parentId. Document blocks cannot be moved with this tool."),
			toolkit.WithDestructive(true),
		),
	}, nil
}

func (p *MoveProvider) moveDocs(ctx context.Context, args moveDocsArgs) (*mcp.CallToolResult, error) {
	if len(args.IDs) == 0 {
		return toolkit.Errorf("At least one document ID is required."), nil
	}

	isNB, err := p.deps.isNotebookID(ctx, args.ToID)
	if err != nil {
		return nil, err
	}
	if isNB {
		if p.deps.Filter.NotebookExcluded(args.ToID) {
			return toolkit.Errorf(msgExcluded), nil
		}
	} else {
		target, err := p.deps.Kernel.GetBlockByID(ctx, args.ToID)
		if err != nil {
			return nil, err
		}
		if target == nil || !target.IsDocument() {
			return toolkit.Errorf("Invalid target ID: it must be a document ID or a notebook ID."), nil
		}
		if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ToID, target); err != nil {
			return nil, err
		} else if excluded {
			return toolkit.Errorf(msgExcluded), nil
		}
	}

	for _, id := range args.IDs {
		doc, err := p.deps.Kernel.GetBlockByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil || !doc.IsDocument() {
			return toolkit.Errorf("Invalid document ID: %s. Please check if the ID exists and names a document.", id), nil
		}
		if excluded, err := p.deps.Filter.BlockExcluded(ctx, id, doc); err != nil {
			return nil, err
		} else if excluded {
			return toolkit.Errorf(msgExcluded), nil
		}
	}

	if err := p.deps.Kernel.MoveDocsByID(ctx, args.IDs, args.ToID); err != nil {
		return toolkit.Errorf("Failed to move documents: %v", err), nil
	}
	for _, id := range args.IDs {
		p.deps.enqueueIndex(id)
	}
	return toolkit.TextResult("Moved documents successfully."), nil
}

func (p *MoveProvider) moveBlock(ctx context.Context, args moveBlockArgs) (*mcp.CallToolResult, error) {
	dbItem, err := p.deps.Kernel.GetBlockByID(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if dbItem == nil {
		return toolkit.Errorf("Invalid block ID. Please check if the ID exists and is correct."), nil
	}
	if dbItem.IsDocument() {
		return toolkit.Errorf("Document blocks cannot be moved with this tool; use kb_move_docs_by_id instead."), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, args.ID, dbItem); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	var byPrevious bool
	var targetID string
	switch {
	case args.PreviousID != "":
		byPrevious = true
		targetID = args.PreviousID
	case args.ParentID != "":
		targetID = args.ParentID
	default:
		return toolkit.Errorf("Either previousId or parentId must be provided to specify the target position."), nil
	}

	target, err := p.deps.Kernel.GetBlockByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return toolkit.Errorf("Invalid target ID %s. Please check if the ID exists and is correct.", targetID), nil
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, targetID, target); err != nil {
		return nil, err
	} else if excluded {
		return toolkit.Errorf(msgExcluded), nil
	}

	if byPrevious {
		if target.IsDocument() {
			return toolkit.Errorf("Cannot move a block after a document block; choose a regular block as the previous sibling."), nil
		}
	} else {
		if !isContainerType(target.Type) {
			return toolkit.Errorf("Cannot move a block under a non-container block; choose a valid container block as the target parent."), nil
		}
		// Lists only hold list items.
		if target.Type == kernel.BlockTypeList && dbItem.Type != kernel.BlockTypeListItem {
			return toolkit.Errorf("Only list item blocks can move under a list block."), nil
		}
	}

	// Folding a heading groups its subtree so the move carries the children.
	foldedHeading := dbItem.Type == kernel.BlockTypeHeading && args.MoveWithSubBlocks
	if foldedHeading {
		if err := p.deps.Kernel.FoldBlock(ctx, args.ID); err != nil {
			return toolkit.Errorf("Failed to fold the heading before moving: %v", err), nil
		}
	}

	var moveErr error
	if byPrevious {
		moveErr = p.deps.Kernel.MoveBlock(ctx, args.ID, targetID, "")
	} else {
		moveErr = p.deps.Kernel.MoveBlock(ctx, args.ID, "", targetID)
	}

	if foldedHeading {
		if err := p.deps.Kernel.UnfoldBlock(ctx, args.ID); err != nil {
			p.deps.log().WarnContext(ctx, "move.unfold.fail",
				slog.String("block", args.ID), slog.String("err", err.Error()))
		}
	}
	if moveErr != nil {
		return toolkit.Errorf("Failed to move the block: %v", moveErr), nil
	}

	p.deps.enqueueIndex(dbItem.RootID)
	if target.RootID != dbItem.RootID {
		p.deps.enqueueIndex(target.RootID)
	}
	return toolkit.TextResult(fmt.Sprintf("Moved block %s successfully.", args.ID)), nil
}
