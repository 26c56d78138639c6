package indexer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/notekit/notemcp/kernel"
)

type stubExporter struct {
	docs map[string]string
	err  error
}

func (s *stubExporter) ExportMarkdown(ctx context.Context, id string) (*kernel.ExportedDoc, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &kernel.ExportedDoc{Content: s.docs[id]}, nil
}

type stubSink struct {
	updates map[string]string
	failIDs map[string]bool
}

func (s *stubSink) Update(ctx context.Context, id, content string) error {
	if s.failIDs[id] {
		return errors.New("sink down")
	}
	if s.updates == nil {
		s.updates = make(map[string]string)
	}
	s.updates[id] = content
	return nil
}

func TestProcessBatch(t *testing.T) {
	exp := &stubExporter{docs: map[string]string{"a": "# A", "b": "# B", "empty": ""}}
	sink := &stubSink{failIDs: map[string]bool{"b": true}}

	failed := processBatch(context.Background(),
		[]Item{{ID: "a"}, {ID: "b"}, {ID: "empty"}, {ID: ""}},
		exp, sink, slog.Default())

	if sink.updates["a"] != "# A" {
		t.Fatalf("expected a indexed, got %v", sink.updates)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("expected only b to fail, got %v", failed)
	}
	if _, ok := sink.updates["empty"]; ok {
		t.Fatal("empty export must be dropped, not indexed")
	}
}

func TestProcessBatchExportFailure(t *testing.T) {
	exp := &stubExporter{err: errors.New("kernel offline")}
	sink := &stubSink{}

	failed := processBatch(context.Background(), []Item{{ID: "a"}}, exp, sink, slog.Default())
	if len(failed) != 1 || failed[0].ID != "a" {
		t.Fatalf("export failure must requeue, got %v", failed)
	}
}
