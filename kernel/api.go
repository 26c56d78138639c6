package kernel

import (
	"context"
	"fmt"
	"strings"
)

// ExportMarkdown exports a document subtree as markdown.
func (c *Client) ExportMarkdown(ctx context.Context, id string) (*ExportedDoc, error) {
	var out ExportedDoc
	err := c.call(ctx, "/api/export/exportMdContent", map[string]any{"id": id}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlockKramdown returns a block's kramdown source.
func (c *Client) GetBlockKramdown(ctx context.Context, id string) (*BlockKramdown, error) {
	var out BlockKramdown
	err := c.call(ctx, "/api/block/getBlockKramdown", map[string]any{"id": id}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SQL runs a query against the kernel database and returns raw rows.
func (c *Client) SQL(ctx context.Context, stmt string) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.call(ctx, "/api/query/sql", map[string]any{"stmt": stmt}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBlockByID fetches one block row, or nil when the id does not exist.
func (c *Client) GetBlockByID(ctx context.Context, id string) (*Block, error) {
	stmt := fmt.Sprintf("SELECT * FROM blocks WHERE id = '%s' LIMIT 1", sqlEscape(id))
	var blocks []Block
	if err := c.call(ctx, "/api/query/sql", map[string]any{"stmt": stmt}, &blocks); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return &blocks[0], nil
}

// GetChildBlocks lists a container block's direct children.
func (c *Client) GetChildBlocks(ctx context.Context, id string) ([]Block, error) {
	var out []Block
	err := c.call(ctx, "/api/block/getChildBlocks", map[string]any{"id": id}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendBlock appends markdown as the last child of parentID and returns the
// new block's id.
func (c *Client) AppendBlock(ctx context.Context, parentID, markdown string) (string, error) {
	return c.mutateBlock(ctx, "/api/block/appendBlock", map[string]any{
		"dataType": "markdown",
		"data":     markdown,
		"parentID": parentID,
	})
}

// PrependBlock inserts markdown as the first child of parentID.
func (c *Client) PrependBlock(ctx context.Context, parentID, markdown string) (string, error) {
	return c.mutateBlock(ctx, "/api/block/prependBlock", map[string]any{
		"dataType": "markdown",
		"data":     markdown,
		"parentID": parentID,
	})
}

// InsertBlock inserts markdown anchored by exactly one of nextID, previousID,
// or parentID, in that precedence order.
func (c *Client) InsertBlock(ctx context.Context, markdown, nextID, previousID, parentID string) (string, error) {
	return c.mutateBlock(ctx, "/api/block/insertBlock", map[string]any{
		"dataType":   "markdown",
		"data":       markdown,
		"nextID":     nextID,
		"previousID": previousID,
		"parentID":   parentID,
	})
}

// UpdateBlock replaces a block's content in place.
func (c *Client) UpdateBlock(ctx context.Context, id, dataType, data string) error {
	return c.call(ctx, "/api/block/updateBlock", map[string]any{
		"dataType": dataType,
		"data":     data,
		"id":       id,
	}, nil)
}

// DeleteBlock removes a block.
func (c *Client) DeleteBlock(ctx context.Context, id string) error {
	return c.call(ctx, "/api/block/deleteBlock", map[string]any{"id": id}, nil)
}

// MoveBlock moves a block under parentID or after previousID.
func (c *Client) MoveBlock(ctx context.Context, id, previousID, parentID string) error {
	return c.call(ctx, "/api/block/moveBlock", map[string]any{
		"id":         id,
		"previousID": previousID,
		"parentID":   parentID,
	}, nil)
}

// FoldBlock collapses a block. Folding a heading groups its subtree so a
// following move carries the children along.
func (c *Client) FoldBlock(ctx context.Context, id string) error {
	return c.call(ctx, "/api/block/foldBlock", map[string]any{"id": id}, nil)
}

// UnfoldBlock expands a block.
func (c *Client) UnfoldBlock(ctx context.Context, id string) error {
	return c.call(ctx, "/api/block/unfoldBlock", map[string]any{"id": id}, nil)
}

// FullTextSearch runs a paged full-text search.
func (c *Client) FullTextSearch(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var out SearchResult
	if err := c.call(ctx, "/api/search/fullTextSearchBlock", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNotebooks returns all notebooks, open and closed.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	var out struct {
		Notebooks []Notebook `json:"notebooks"`
	}
	if err := c.call(ctx, "/api/notebook/lsNotebooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Notebooks, nil
}

// GetNotebookConf returns one notebook's configuration.
func (c *Client) GetNotebookConf(ctx context.Context, notebookID string) (*NotebookConf, error) {
	var out NotebookConf
	if err := c.call(ctx, "/api/notebook/getNotebookConf", map[string]any{"notebook": notebookID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDailyNote creates (or returns) today's daily note in the notebook.
func (c *Client) CreateDailyNote(ctx context.Context, notebookID, app string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "/api/filetree/createDailyNote", map[string]any{
		"notebook": notebookID,
		"app":      app,
	}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateDocWithMarkdown creates a document at the human-readable path and
// returns the new document id.
func (c *Client) CreateDocWithMarkdown(ctx context.Context, notebookID, hPath, markdown string) (string, error) {
	var docID string
	if err := c.call(ctx, "/api/filetree/createDocWithMd", map[string]any{
		"notebook": notebookID,
		"path":     hPath,
		"markdown": markdown,
	}, &docID); err != nil {
		return "", err
	}
	return docID, nil
}

// MoveDocsByID moves the documents in fromIDs under the document toID.
func (c *Client) MoveDocsByID(ctx context.Context, fromIDs []string, toID string) error {
	return c.call(ctx, "/api/filetree/moveDocsByID", map[string]any{
		"fromIDs": fromIDs,
		"toID":    toID,
	}, nil)
}

// GetBacklinks returns documents linking to and mentioning the target block.
func (c *Client) GetBacklinks(ctx context.Context, id string) (*BacklinkResult, error) {
	var out BacklinkResult
	if err := c.call(ctx, "/api/ref/getBacklink2", map[string]any{
		"id":   id,
		"sort": "3",
		"mSort": "3",
		"k":    "",
		"mk":   "",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRiffDecks lists flashcard decks.
func (c *Client) ListRiffDecks(ctx context.Context) ([]RiffDeck, error) {
	var out []RiffDeck
	if err := c.call(ctx, "/api/riff/getRiffDecks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddRiffCards turns the blocks into flashcards in the deck.
func (c *Client) AddRiffCards(ctx context.Context, deckID string, blockIDs []string) error {
	return c.call(ctx, "/api/riff/addRiffCards", map[string]any{
		"deckID":   deckID,
		"blockIDs": blockIDs,
	}, nil)
}

// mutateBlock posts a block mutation and extracts the created block id from
// the transaction receipt.
func (c *Client) mutateBlock(ctx context.Context, path string, params map[string]any) (string, error) {
	var receipts []txReceipt
	if err := c.call(ctx, path, params, &receipts); err != nil {
		return "", err
	}
	for _, r := range receipts {
		for _, op := range r.DoOperations {
			if op.ID != "" {
				return op.ID, nil
			}
		}
	}
	return "", fmt.Errorf("kernel %s: transaction receipt carried no block id", path)
}

// sqlEscape doubles single quotes for safe literal embedding.
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
