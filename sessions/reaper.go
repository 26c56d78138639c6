package sessions

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically sweeps idle sessions out of a store.
type Reaper struct {
	store    *Store
	interval time.Duration
	idleFor  time.Duration
	log      *slog.Logger
}

// NewReaper builds a reaper that sweeps store every interval, removing
// sessions idle for longer than idleFor.
func NewReaper(store *Store, interval, idleFor time.Duration, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{store: store, interval: interval, idleFor: idleFor, log: log}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.store.Sweep(r.idleFor); n > 0 {
				r.log.Info("session.reap", slog.Int("count", n))
			}
		}
	}
}
