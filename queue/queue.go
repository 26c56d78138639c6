// Package queue implements a durable FIFO backed by two rotating JSON files.
// One file is the read side, the other accumulates writes; when the read side
// drains, the write file's content rotates over. The two sides have
// independent locks so enqueues never wait on consumers.
package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	readFileName  = "cache_a.json"
	writeFileName = "cache_b.json"
)

// Queue is a durable double-buffered queue of T.
type Queue[T any] struct {
	readPath  string
	writePath string
	log       *slog.Logger

	readMu    sync.Mutex
	readCache []T

	writeMu sync.Mutex
}

// New opens (or creates) a queue in cacheDir.
func New[T any](cacheDir string, log *slog.Logger) (*Queue[T], error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	q := &Queue[T]{
		readPath:  filepath.Join(cacheDir, readFileName),
		writePath: filepath.Join(cacheDir, writeFileName),
		log:       log,
	}
	for _, p := range []string{q.readPath, q.writePath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := writeJSONFile(p, []T{}); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return q, nil
}

// Enqueue appends one item to the write side.
func (q *Queue[T]) Enqueue(item T) error {
	return q.BatchEnqueue([]T{item})
}

// BatchEnqueue appends items to the write side in order.
func (q *Queue[T]) BatchEnqueue(items []T) error {
	if len(items) == 0 {
		return nil
	}
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	current, err := readJSONFile[T](q.writePath)
	if err != nil {
		// A corrupt write file is reset rather than wedging the queue.
		q.log.Warn("queue.write_file.reset", slog.String("err", err.Error()))
		current = nil
	}
	current = append(current, items...)
	return writeJSONFile(q.writePath, current)
}

// Consume removes and returns up to count items in FIFO order. An empty
// result means the whole queue is empty.
func (q *Queue[T]) Consume(count int) ([]T, error) {
	if count <= 0 {
		return nil, nil
	}
	q.readMu.Lock()
	defer q.readMu.Unlock()

	if len(q.readCache) == 0 {
		if err := q.preload(); err != nil {
			return nil, err
		}
	}
	if len(q.readCache) == 0 {
		// Read side drained: rotate the write file over and retry.
		if err := q.rotate(); err != nil {
			return nil, err
		}
		if err := q.preload(); err != nil {
			return nil, err
		}
	}
	if len(q.readCache) == 0 {
		return nil, nil
	}

	n := min(count, len(q.readCache))
	out := make([]T, n)
	copy(out, q.readCache[:n])
	q.readCache = q.readCache[n:]
	return out, nil
}

// preload moves the read file's content into memory and truncates the file.
// Caller holds readMu.
func (q *Queue[T]) preload() error {
	items, err := readJSONFile[T](q.readPath)
	if err != nil {
		q.log.Warn("queue.read_file.reset", slog.String("err", err.Error()))
		items = nil
	}
	if len(items) == 0 {
		return nil
	}
	q.readCache = items
	return writeJSONFile(q.readPath, []T{})
}

// rotate moves the write file's content to the read file and truncates the
// write side. Caller holds readMu; rotate additionally takes writeMu so no
// enqueue interleaves with the move.
func (q *Queue[T]) rotate() error {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	items, err := readJSONFile[T](q.writePath)
	if err != nil {
		q.log.Warn("queue.write_file.reset", slog.String("err", err.Error()))
		items = nil
	}
	if len(items) == 0 {
		return nil
	}
	if err := writeJSONFile(q.readPath, items); err != nil {
		return err
	}
	return writeJSONFile(q.writePath, []T{})
}

// Len reports the total number of queued items across memory and both files.
func (q *Queue[T]) Len() (int, error) {
	q.readMu.Lock()
	defer q.readMu.Unlock()
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	total := len(q.readCache)
	for _, p := range []string{q.readPath, q.writePath} {
		items, err := readJSONFile[T](p)
		if err != nil {
			return 0, err
		}
		total += len(items)
	}
	return total, nil
}

func readJSONFile[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}

// writeJSONFile writes atomically via a temp file rename so a crash never
// leaves a half-written queue file.
func writeJSONFile[T any](path string, items []T) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
