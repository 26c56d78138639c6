// Package filter gates tool access to excluded notebooks and documents.
// Exclusion lists come from settings and apply to both reads and writes.
package filter

import (
	"context"
	"strings"

	"github.com/notekit/notemcp/kernel"
)

// Lookup resolves a block row. Satisfied by *kernel.Client.
type Lookup interface {
	GetBlockByID(ctx context.Context, id string) (*kernel.Block, error)
}

// Lists holds the parsed exclusion lists.
type Lists struct {
	Notebooks []string
	Documents []string
}

// ParseLists splits newline-separated id lists from settings, trimming blank
// entries.
func ParseLists(notebooks, documents string) Lists {
	return Lists{
		Notebooks: splitIDs(notebooks),
		Documents: splitIDs(documents),
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Checker answers whether a block or notebook is excluded.
type Checker struct {
	lists  func() Lists
	lookup Lookup
}

// NewChecker builds a checker. lists is consulted per call so settings
// changes apply immediately.
func NewChecker(lists func() Lists, lookup Lookup) *Checker {
	return &Checker{lists: lists, lookup: lookup}
}

// BlockExcluded reports whether the block sits in an excluded notebook or
// under an excluded document. dbItem may be pre-fetched; when nil, the block
// is looked up. An unknown id is not excluded.
func (c *Checker) BlockExcluded(ctx context.Context, blockID string, dbItem *kernel.Block) (bool, error) {
	l := c.lists()
	if len(l.Notebooks) == 0 && len(l.Documents) == 0 {
		return false, nil
	}

	if dbItem == nil {
		var err error
		dbItem, err = c.lookup.GetBlockByID(ctx, blockID)
		if err != nil {
			return false, err
		}
		if dbItem == nil {
			return false, nil
		}
	}

	for _, nb := range l.Notebooks {
		if dbItem.Box == nb {
			return true, nil
		}
	}
	// Document exclusions match the block itself, any ancestor document in
	// its storage path, or its notebook.
	for _, docID := range l.Documents {
		if dbItem.ID == docID || dbItem.Box == docID || strings.Contains(dbItem.Path, docID) {
			return true, nil
		}
	}
	return false, nil
}

// NotebookExcluded reports whether the notebook id is on the exclusion list.
func (c *Checker) NotebookExcluded(notebookID string) bool {
	for _, nb := range c.lists().Notebooks {
		if nb == notebookID {
			return true
		}
	}
	return false
}
