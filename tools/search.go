package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

//go:embed querysyntax.md
var querySyntaxDoc string

// SearchProvider exposes full-text search and its syntax help.
type SearchProvider struct {
	deps *Deps
}

type searchArgs struct {
	Query              string `json:"query" jsonschema:"description=The keyword or phrase to search for across content blocks"`
	Page               int    `json:"page,omitempty" jsonschema:"description=The page number of the search results to return (starting from 1)"`
	IncludingCodeBlock bool   `json:"includingCodeBlock,omitempty" jsonschema:"description=Whether to include code blocks in the search results"`
	IncludingDatabase  bool   `json:"includingDatabase,omitempty" jsonschema:"description=Whether to include database blocks in the search results"`
	Method             int    `json:"method,omitempty" jsonschema:"description=Search method: 0 keyword search, 1 query syntax (see kb_query_syntax), 2 regular expression"`
	OrderBy            int    `json:"orderBy,omitempty" jsonschema:"description=Sorting: 0 by block type, 1/2 by creation time asc/desc, 3/4 by update time asc/desc, 5 by content order (grouped only), 6/7 by relevance asc/desc"`
	GroupBy            *int   `json:"groupBy,omitempty" jsonschema:"description=Grouping: 0 individual blocks, 1 grouped by containing document (default)"`
}

func (p *SearchProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_search", p.search,
			toolkit.WithTitle("Full-Text Search"),
			toolkit.WithDescription("Perform a keyword-based full-text search across content blocks (paragraphs, headings). Matches literal text only; for dynamic queries (daily notes, path restrictions, date ranges) use kb_query_sql instead. Results are grouped by their containing documents with page size 10."),
			toolkit.WithReadOnly(true),
		),
		toolkit.NewTool("kb_query_syntax", p.querySyntax,
			toolkit.WithTitle("Query Syntax Help"),
			toolkit.WithDescription("Documentation for the advanced query syntax used by kb_search method 1, including boolean operators (AND, OR, NOT)."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *SearchProvider) search(ctx context.Context, args searchArgs) (*mcp.CallToolResult, error) {
	page := args.Page
	if page < 1 {
		page = 1
	}
	groupBy := 1
	if args.GroupBy != nil {
		groupBy = *args.GroupBy
	}

	types := defaultSearchTypes()
	types["codeBlock"] = args.IncludingCodeBlock
	types["databaseBlock"] = args.IncludingDatabase

	res, err := p.deps.Kernel.FullTextSearch(ctx, kernel.SearchQuery{
		Query:   args.Query,
		Method:  args.Method,
		Types:   types,
		OrderBy: args.OrderBy,
		GroupBy: groupBy,
		Page:    page,
	})
	if err != nil {
		return toolkit.Errorf("Search failed: %v", err), nil
	}
	return toolkit.TextResult(formatSearchResult(res, page, groupBy)), nil
}

func (p *SearchProvider) querySyntax(ctx context.Context, args struct{}) (*mcp.CallToolResult, error) {
	return toolkit.TextResult(querySyntaxDoc), nil
}

// defaultSearchTypes is the block type filter applied when the caller does
// not opt in to code or database blocks.
func defaultSearchTypes() map[string]bool {
	return map[string]bool{
		"document":   true,
		"heading":    true,
		"list":       true,
		"listItem":   true,
		"paragraph":  true,
		"blockquote": true,
		"superBlock": true,
		"mathBlock":  true,
		"htmlBlock":  true,
		"embedBlock": true,
		"codeBlock":  false,
		"databaseBlock": false,
	}
}

// formatSearchResult compacts a result page into a paging summary plus
// trimmed rows, so callers are not flooded with full block rows.
func formatSearchResult(res *kernel.SearchResult, page, groupBy int) string {
	grouped := groupBy == 1
	if !grouped && len(res.Blocks) > 0 && len(res.Blocks[0].Children) > 0 {
		grouped = true
	}

	var data any
	if grouped {
		rows := make([]map[string]any, 0, len(res.Blocks))
		for _, b := range res.Blocks {
			children := make([]string, 0, len(b.Children))
			for _, c := range b.Children {
				children = append(children, searchHitString(c))
			}
			rows = append(rows, map[string]any{
				"notebookId": b.Box,
				"path":       b.Path,
				"docId":      b.RootID,
				"docName":    b.Content,
				"hPath":      b.HPath,
				"tag":        b.Tag,
				"memo":       b.Memo,
				"children":   children,
			})
		}
		data = rows
	} else {
		rows := make([]map[string]any, 0, len(res.Blocks))
		for _, b := range res.Blocks {
			rows = append(rows, map[string]any{
				"notebookId":   b.Box,
				"path":         b.Path,
				"docId":        b.RootID,
				"blockId":      b.ID,
				"content":      b.Markdown,
				"docHumanPath": b.HPath,
				"tag":          b.Tag,
				"memo":         b.Memo,
				"alias":        b.Alias,
			})
		}
		data = rows
	}

	body, err := json.Marshal(data)
	if err != nil {
		body = []byte("[]")
	}
	return fmt.Sprintf(
		"This is page %d of a paginated API response.\n%d documents and %d content blocks matched the search, across %d total pages.\nSearch Result:\n%s",
		page, res.MatchedRootCount, res.MatchedBlockCount, res.PageCount, body,
	)
}

// searchHitString prefers the hit's markdown and falls back to the first
// child content.
func searchHitString(b kernel.SearchBlock) string {
	if b.Markdown != "" {
		return b.Markdown
	}
	return b.FContent
}
