// Package tools implements the knowledge-base tool surface: document reads
// and writes, block edits, search, SQL, daily notes, relations, flashcards,
// and moves. Every provider is a thin wrapper over the kernel API client,
// with id validation and exclusion-filter checks in front of each call.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"

	"github.com/notekit/notemcp/config"
	"github.com/notekit/notemcp/filter"
	"github.com/notekit/notemcp/indexer"
	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/mcp"
	"github.com/notekit/notemcp/toolkit"
)

// Deps carries the collaborators shared by every provider.
type Deps struct {
	Kernel *kernel.Client
	Filter *filter.Checker

	// Index is the semantic search backend; nil when no index service is
	// configured.
	Index *indexer.Provider

	// Enqueue hands a document id to the indexing queue after a successful
	// write. nil disables index maintenance.
	Enqueue func(docID string)

	Settings func() config.Settings
	Log      *slog.Logger
}

// Providers returns the full provider set in registration order.
func Providers(d *Deps) []toolkit.Provider {
	return []toolkit.Provider{
		&DocReadProvider{d},
		&DocWriteProvider{d},
		&BlockWriteProvider{d},
		&SearchProvider{d},
		&SQLProvider{d},
		&DailyNoteProvider{d},
		&RelationProvider{d},
		&FlashcardProvider{d},
		&MoveProvider{d},
		&SemanticSearchProvider{d},
	}
}

func (d *Deps) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// enqueueIndex schedules the document for re-indexing after a write.
func (d *Deps) enqueueIndex(docID string) {
	if d.Enqueue == nil || docID == "" {
		return
	}
	d.Enqueue(docID)
}

// isNotebookID reports whether id names an existing notebook. Notebook and
// block ids share a format, so membership is the only reliable test.
func (d *Deps) isNotebookID(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	notebooks, err := d.Kernel.ListNotebooks(ctx)
	if err != nil {
		return false, err
	}
	for _, nb := range notebooks {
		if nb.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// idPattern matches kernel node ids: a 14-digit timestamp and a 7-char tag.
var idPattern = regexp.MustCompile(`^\d{14}-[0-9a-z]{7}$`)

func validID(id string) bool {
	return idPattern.MatchString(id)
}

const msgExcluded = "The target is excluded by the user's settings, so it cannot be read or written."

// jsonResult marshals v into a single text content block.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return toolkit.Errorf("failed to encode result: %v", err)
	}
	return toolkit.TextResult(string(b))
}

// nonContainerTypes are block types that cannot hold child blocks; writes
// anchored on a parent must refuse them. Headings count as non-containers
// here even though they head a subtree.
var nonContainerTypes = map[string]bool{
	"audio": true, "av": true, "c": true, "html": true, "iframe": true,
	"m": true, "p": true, "t": true, "tb": true, "video": true,
	"widget": true, "h": true, "query_embed": true,
}

func isContainerType(t string) bool {
	return !nonContainerTypes[t]
}
