package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/notekit/notemcp/kernel"
	"github.com/notekit/notemcp/queue"
)

// Item is one queued indexing task.
type Item struct {
	ID string `json:"id"`
}

const (
	consumeInterval = 5 * time.Second
	consumeBatch    = 5
)

// Exporter exports a document as markdown. Satisfied by *kernel.Client.
type Exporter interface {
	ExportMarkdown(ctx context.Context, id string) (*kernel.ExportedDoc, error)
}

// Sink receives exported content. Satisfied by *Provider.
type Sink interface {
	Update(ctx context.Context, id, content string) error
}

// NewWorker builds the periodic consumer that drains the indexing queue:
// every tick it takes a batch of ids, exports each document's markdown, and
// submits it to the index sink.
func NewWorker(q *queue.Queue[Item], exp Exporter, sink Sink, log *slog.Logger) *queue.Consumer[Item] {
	if log == nil {
		log = slog.Default()
	}
	process := func(ctx context.Context, items []Item) []Item {
		return processBatch(ctx, items, exp, sink, log)
	}
	return queue.NewConsumer(q, consumeInterval, consumeBatch, process, log)
}

// processBatch exports and submits one batch. Items that fail to export or
// submit are returned for re-enqueueing; items whose export yields nothing
// are dropped.
func processBatch(ctx context.Context, items []Item, exp Exporter, sink Sink, log *slog.Logger) []Item {
	var failed []Item
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		doc, err := exp.ExportMarkdown(ctx, item.ID)
		if err != nil {
			log.Warn("index.export.fail",
				slog.String("doc_id", item.ID),
				slog.String("err", err.Error()),
			)
			failed = append(failed, item)
			continue
		}
		if doc.Content == "" {
			continue
		}
		if err := sink.Update(ctx, item.ID, doc.Content); err != nil {
			log.Warn("index.submit.fail",
				slog.String("doc_id", item.ID),
				slog.String("err", err.Error()),
			)
			failed = append(failed, item)
		}
	}
	return failed
}
