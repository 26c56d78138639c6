package tools

import (
	"context"
	_ "embed"
	"strings"

	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

//go:embed dbschema.md
var databaseSchemaDoc string

// SQLProvider exposes read-only SQL queries and the schema help.
type SQLProvider struct {
	deps *Deps
}

type sqlArgs struct {
	Stmt string `json:"stmt" jsonschema:"description=A valid SQL SELECT statement to execute"`
}

func (p *SQLProvider) GetTools(ctx context.Context) ([]toolkit.Tool, error) {
	return []toolkit.Tool{
		toolkit.NewTool("kb_database_schema", p.schema,
			toolkit.WithTitle("Database Schema"),
			toolkit.WithDescription("The knowledge-base database schema: table names, field names, and their relationships, for constructing valid SQL queries. Returned as markdown."),
			toolkit.WithReadOnly(true),
		),
		toolkit.NewTool("kb_query_sql", p.query,
			toolkit.WithTitle("SQL Query"),
			toolkit.WithDescription("Execute a SQL SELECT query against the knowledge-base database to retrieve notes, documents, and their content. Consult kb_database_schema for table and field names before writing a query."),
			toolkit.WithReadOnly(true),
		),
	}, nil
}

func (p *SQLProvider) schema(ctx context.Context, args struct{}) (*mcp.CallToolResult, error) {
	return toolkit.TextResult(databaseSchemaDoc), nil
}

func (p *SQLProvider) query(ctx context.Context, args sqlArgs) (*mcp.CallToolResult, error) {
	if !isSelectStmt(args.Stmt) {
		return toolkit.Errorf("Not a SELECT statement."), nil
	}
	rows, err := p.deps.Kernel.SQL(ctx, args.Stmt)
	if err != nil {
		return toolkit.Errorf("Query failed: %v", err), nil
	}
	return jsonResult(rows), nil
}

func isSelectStmt(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT")
}
