package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// appID identifies this server to the kernel's daily note endpoint.
const appID = "notemcp"

// DailyNoteProvider exposes daily-note appends and notebook listing.
type DailyNoteProvider struct {
	deps *Deps
}

type dailyNoteArgs struct {
	NotebookID      string `json:"notebookId" jsonschema:"description=The ID of the target notebook where the daily note lives; the notebook must not be closed"`
	MarkdownContent string `json:"markdownContent" jsonschema:"description=The Markdown-formatted content to append to today's daily note"`
}

func (p *DailyNoteProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_append_to_dailynote", p.appendToDailyNote,
			toolkit.WithTitle("Append To Daily Note"),
			toolkit.WithDescription("Append Markdown content to today's daily note in the given notebook, creating the note first when it does not exist yet."),
			toolkit.WithReadOnly(false),
			toolkit.WithDestructive(false),
			toolkit.WithIdempotent(false),
		),
		toolkit.NewTool("kb_list_notebooks", p.listNotebooks,
			toolkit.WithTitle("List Notebooks"),
			toolkit.WithDescription("List all notebooks with their metadata: id, name, icon, sort, closed state, and the daily note save path and template configured for each."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *DailyNoteProvider) appendToDailyNote(ctx context.Context, args dailyNoteArgs) (*mcp.CallToolResult, error) {
	notebook, err := p.findNotebook(ctx, args.NotebookID)
	if err != nil {
		return nil, err
	}
	if notebook == nil {
		return toolkit.Errorf("Invalid notebook ID. Please check the ID with kb_list_notebooks."), nil
	}
	if notebook.Closed {
		return toolkit.Errorf("The target notebook is closed; daily notes can only be created in open notebooks."), nil
	}
	if p.deps.Filter.NotebookExcluded(args.NotebookID) {
		return toolkit.Errorf(msgExcluded), nil
	}

	// Whether the note row exists already must be read before the append
	// lands in the database.
	docID, err := p.deps.Kernel.CreateDailyNote(ctx, args.NotebookID, appID)
	if err != nil || docID == "" {
		return toolkit.Errorf("Internal error: failed to create the daily note."), nil
	}
	existing, err := p.deps.Kernel.GetBlockByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	newID, err := p.deps.Kernel.AppendBlock(ctx, docID, args.MarkdownContent)
	if err != nil {
		return toolkit.Errorf("Failed to append to the daily note: %v", err), nil
	}

	// A freshly created note starts with one empty placeholder paragraph;
	// drop it so the appended content stands alone.
	if existing == nil {
		p.removePlaceholder(ctx, docID)
	}

	p.deps.enqueueIndex(docID)
	return toolkit.TextResult("Successfully appended to the daily note, the block ID for the new content is " + newID), nil
}

func (p *DailyNoteProvider) removePlaceholder(ctx context.Context, docID string) {
	children, err := p.deps.Kernel.GetChildBlocks(ctx, docID)
	if err != nil {
		p.deps.log().WarnContext(ctx, "dailynote.placeholder.check.fail", slog.String("err", err.Error()))
		return
	}
	if len(children) == 0 {
		return
	}
	first := children[0]
	if first.Type != kernel.BlockTypeParagraph || strings.TrimSpace(first.Markdown) != "" {
		return
	}
	if err := p.deps.Kernel.DeleteBlock(ctx, first.ID); err != nil {
		p.deps.log().WarnContext(ctx, "dailynote.placeholder.remove.fail", slog.String("err", err.Error()))
	}
}

func (p *DailyNoteProvider) listNotebooks(ctx context.Context, args struct{}) (*mcp.CallToolResult, error) {
	notebooks, err := p.deps.Kernel.ListNotebooks(ctx)
	if err != nil {
		return toolkit.Errorf("Failed to list notebooks: %v", err), nil
	}

	rows := make([]map[string]any, 0, len(notebooks))
	for _, nb := range notebooks {
		if p.deps.Filter.NotebookExcluded(nb.ID) {
			continue
		}
		row := map[string]any{
			"id":     nb.ID,
			"name":   nb.Name,
			"icon":   nb.Icon,
			"sort":   nb.Sort,
			"closed": nb.Closed,
		}
		conf, err := p.deps.Kernel.GetNotebookConf(ctx, nb.ID)
		if err != nil {
			p.deps.log().WarnContext(ctx, "notebook.conf.fail",
				slog.String("notebook", nb.ID), slog.String("err", err.Error()))
		} else {
			row["dailyNoteSavePath"] = conf.Conf.DailyNoteSavePath
			row["dailyNoteTemplatePath"] = conf.Conf.DailyNoteTemplate
			row["refCreateSavePath"] = conf.Conf.RefCreateSavePath
			row["docCreateSavePath"] = conf.Conf.DocCreateSavePath
		}
		rows = append(rows, row)
	}
	return jsonResult(rows), nil
}

func (p *DailyNoteProvider) findNotebook(ctx context.Context, id string) (*kernel.Notebook, error) {
	notebooks, err := p.deps.Kernel.ListNotebooks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range notebooks {
		if notebooks[i].ID == id {
			return &notebooks[i], nil
		}
	}
	return nil, nil
}
