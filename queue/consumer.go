package queue

import (
	"context"
	"log/slog"
	"time"
)

// ProcessFunc handles one consumed batch. Items returned in failed are
// re-enqueued for a later attempt.
type ProcessFunc[T any] func(ctx context.Context, items []T) (failed []T)

// Consumer drains a queue on a fixed tick.
type Consumer[T any] struct {
	q        *Queue[T]
	interval time.Duration
	batch    int
	process  ProcessFunc[T]
	log      *slog.Logger
}

// NewConsumer builds a consumer that every interval takes up to batch items
// and hands them to process.
func NewConsumer[T any](q *Queue[T], interval time.Duration, batch int, process ProcessFunc[T], log *slog.Logger) *Consumer[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer[T]{q: q, interval: interval, batch: batch, process: process, log: log}
}

// Run blocks until ctx is canceled.
func (c *Consumer[T]) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.tick(ctx)
		}
	}
}

func (c *Consumer[T]) tick(ctx context.Context) {
	items, err := c.q.Consume(c.batch)
	if err != nil {
		c.log.Warn("queue.consume.fail", slog.String("err", err.Error()))
		return
	}
	if len(items) == 0 {
		return
	}

	failed := c.process(ctx, items)
	if len(failed) > 0 {
		if err := c.q.BatchEnqueue(failed); err != nil {
			c.log.Warn("queue.requeue.fail",
				slog.Int("count", len(failed)),
				slog.String("err", err.Error()),
			)
		}
	}
}
