package tools

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// quickDeckID is the kernel's built-in quick deck, always present.
const quickDeckID = "20230218211946-2kw8jgx"

// indexWait bounds how long a new document is polled before flashcard block
// queries run against it.
const (
	indexWaitAttempts = 10
	indexWaitDelay    = 500 * time.Millisecond
)

// FlashcardProvider creates documents and turns their blocks into flashcards.
type FlashcardProvider struct {
	deps *Deps
}

type flashcardArgs struct {
	ParentID        string `json:"parentId" jsonschema:"description=The ID of the parent document (or a notebook ID) under which the new document is created"`
	DocTitle        string `json:"docTitle" jsonschema:"description=The title of the new document that will contain the flashcards"`
	Type            string `json:"type" jsonschema:"description=The block type turned into flashcards,enum=h1,enum=h2,enum=h3,enum=h4,enum=h5,enum=highlight,enum=superBlock"`
	DeckID          string `json:"deckId,omitempty" jsonschema:"description=The ID of the flashcard deck the new cards join; empty selects the default deck"`
	MarkdownContent string `json:"markdownContent" jsonschema:"description=The Markdown-formatted content of the new document"`
}

func (p *FlashcardProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_create_flashcards_with_new_doc", p.createFlashcards,
			toolkit.WithTitle("Create Flashcards with New Doc"),
			toolkit.WithDescription("Create a new document from markdown content and turn its blocks of the chosen type (headings, highlights, or super blocks) into flashcards in a deck."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
	}, nil
}

func (p *FlashcardProvider) createFlashcards(ctx context.Context, args flashcardArgs) (*mcp.CallToolResult, error) {
	deckID := args.DeckID
	if deckID == "" {
		deckID = p.deps.Settings().FlashcardDeckID
	}
	if deckID == "" {
		deckID = quickDeckID
	}
	if ok, err := p.deckExists(ctx, deckID); err != nil {
		return toolkit.Errorf("Failed to check the deck: %v", err), nil
	} else if !ok {
		return toolkit.Errorf("Flashcard creation failed: the deck ID does not exist. If the user did not name a deck, pass an empty deckId to use the default deck."), nil
	}

	docID, res := p.createDoc(ctx, args.ParentID, args.DocTitle, args.MarkdownContent)
	if res != nil {
		return res, nil
	}

	// The new document's blocks appear in the database only after the kernel
	// indexes it.
	if err := p.waitForDoc(ctx, docID); err != nil {
		return toolkit.Errorf("The document was created (%s) but its blocks never appeared in the database; flashcards were not added.", docID), nil
	}

	blockIDs, err := p.collectBlockIDs(ctx, docID, args.Type)
	if err != nil {
		return toolkit.Errorf("Failed to collect flashcard blocks: %v", err), nil
	}
	if len(blockIDs) == 0 {
		return toolkit.Errorf("The document was created (%s) but contains no blocks of type %q to turn into flashcards.", docID, args.Type), nil
	}

	if err := p.deps.Kernel.AddRiffCards(ctx, deckID, blockIDs); err != nil {
		return toolkit.Errorf("Failed to add flashcards: %v", err), nil
	}
	p.deps.enqueueIndex(docID)
	return toolkit.TextResult(fmt.Sprintf("Successfully created %d flashcards in document %s.", len(blockIDs), docID)), nil
}

// createDoc creates the flashcard document under a notebook root or a parent
// document. A non-nil result is the error to return.
func (p *FlashcardProvider) createDoc(ctx context.Context, parentID, title, markdown string) (string, *mcp.CallToolResult) {
	if !validID(parentID) {
		return "", toolkit.Errorf("Invalid parentId format.")
	}
	if title == "" {
		title = "Untitled"
	}

	isNB, err := p.deps.isNotebookID(ctx, parentID)
	if err != nil {
		return "", toolkit.Errorf("Failed to check parentId: %v", err)
	}
	if isNB {
		if p.deps.Filter.NotebookExcluded(parentID) {
			return "", toolkit.Errorf(msgExcluded)
		}
		docID, err := p.deps.Kernel.CreateDocWithMarkdown(ctx, parentID, "/"+title, markdown)
		if err != nil {
			return "", toolkit.Errorf("Failed to create the flashcard document: %v", err)
		}
		return docID, nil
	}

	parent, err := p.deps.Kernel.GetBlockByID(ctx, parentID)
	if err != nil {
		return "", toolkit.Errorf("Failed to look up parentId: %v", err)
	}
	if parent == nil || !parent.IsDocument() {
		return "", toolkit.Errorf("Invalid parentId: it must be a notebook ID or a document ID.")
	}
	if excluded, err := p.deps.Filter.BlockExcluded(ctx, parentID, parent); err != nil {
		return "", toolkit.Errorf("Failed to check exclusion: %v", err)
	} else if excluded {
		return "", toolkit.Errorf(msgExcluded)
	}

	docID, err := p.deps.Kernel.CreateDocWithMarkdown(ctx, parent.Box, parent.HPath+"/"+title, markdown)
	if err != nil {
		return "", toolkit.Errorf("Failed to create the flashcard document: %v", err)
	}
	return docID, nil
}

func (p *FlashcardProvider) deckExists(ctx context.Context, deckID string) (bool, error) {
	if deckID == quickDeckID {
		return true, nil
	}
	decks, err := p.deps.Kernel.ListRiffDecks(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range decks {
		if d.ID == deckID {
			return true, nil
		}
	}
	return false, nil
}

func (p *FlashcardProvider) waitForDoc(ctx context.Context, docID string) error {
	for i := 0; i < indexWaitAttempts; i++ {
		row, err := p.deps.Kernel.GetBlockByID(ctx, docID)
		if err != nil {
			return err
		}
		if row != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(indexWaitDelay):
		}
	}
	return fmt.Errorf("document %s not indexed in time", docID)
}

func (p *FlashcardProvider) collectBlockIDs(ctx context.Context, docID, cardType string) ([]string, error) {
	switch cardType {
	case "h1", "h2", "h3", "h4", "h5":
		return p.queryIDs(ctx, fmt.Sprintf(
			"SELECT id, markdown FROM blocks WHERE root_id = '%s' AND type = '%s' AND subtype = '%s'",
			docID, kernel.BlockTypeHeading, cardType))
	case "superBlock":
		return p.queryIDs(ctx, fmt.Sprintf(
			"SELECT id, markdown FROM blocks WHERE root_id = '%s' AND type = '%s'",
			docID, kernel.BlockTypeSuperBlock))
	case "highlight":
		ids, err := p.queryRows(ctx, fmt.Sprintf(
			"SELECT id, markdown FROM blocks WHERE root_id = '%s' AND type = '%s' AND markdown LIKE '%%==%%'",
			docID, kernel.BlockTypeParagraph))
		if err != nil {
			return nil, err
		}
		var out []string
		for _, row := range ids {
			if hasHighlight(row.markdown) {
				out = append(out, row.id)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported flashcard type %q", cardType)
	}
}

type idMarkdownRow struct {
	id       string
	markdown string
}

func (p *FlashcardProvider) queryRows(ctx context.Context, stmt string) ([]idMarkdownRow, error) {
	rows, err := p.deps.Kernel.SQL(ctx, stmt)
	if err != nil {
		return nil, err
	}
	out := make([]idMarkdownRow, 0, len(rows))
	for _, row := range rows {
		r := idMarkdownRow{}
		if v, ok := row["id"].(string); ok {
			r.id = v
		}
		if v, ok := row["markdown"].(string); ok {
			r.markdown = v
		}
		if r.id != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *FlashcardProvider) queryIDs(ctx context.Context, stmt string) ([]string, error) {
	rows, err := p.queryRows(ctx, stmt)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.id)
	}
	return ids, nil
}

var (
	inlineCodePattern = regexp.MustCompile("`[^`]*`")
	highlightPattern  = regexp.MustCompile(`==[^=]+==`)
)

// hasHighlight reports whether the markdown carries a ==highlight== marker
// outside inline code.
func hasHighlight(markdown string) bool {
	return highlightPattern.MatchString(inlineCodePattern.ReplaceAllString(markdown, ""))
}
