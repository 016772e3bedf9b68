// Package shard partitions a transaction stream across independent engines
// keyed by client id. No event ever references another client's account or
// transaction id, so shards share no state and need no locking; within a
// shard events are still applied strictly in feed order.
package shard

import (
	"context"
	"sync"

	"payflux.org/internal/engine"
)

// Observer is invoked for every processed event with its outcome. It may be
// called concurrently from different shards.
type Observer func(tx engine.Transaction, out engine.Outcome)

// Runner routes events to one engine per shard. A client always maps to the
// same shard, which preserves per-client ordering.
type Runner struct {
	engines []*engine.Engine
	observe Observer
}

// New creates a runner with n shards. n < 1 is treated as 1, the strictly
// sequential model.
func New(n int, observe Observer) *Runner {
	if n < 1 {
		n = 1
	}
	engines := make([]*engine.Engine, n)
	for i := range engines {
		engines[i] = engine.New()
	}
	return &Runner{engines: engines, observe: observe}
}

// Run drains the event stream, dispatching each event to its shard. It
// returns when the stream is closed, or the context error if the feed is
// cancelled mid-stream. Run must not be called twice.
func (r *Runner) Run(ctx context.Context, events <-chan engine.Transaction) error {
	n := len(r.engines)
	feeds := make([]chan engine.Transaction, n)
	var wg sync.WaitGroup
	for i := range feeds {
		feeds[i] = make(chan engine.Transaction, 64)
		wg.Add(1)
		go func(eng *engine.Engine, feed <-chan engine.Transaction) {
			defer wg.Done()
			for tx := range feed {
				out := eng.Apply(tx)
				if r.observe != nil {
					r.observe(tx, out)
				}
			}
		}(r.engines[i], feeds[i])
	}

	var err error
loop:
	for {
		select {
		case tx, ok := <-events:
			if !ok {
				break loop
			}
			feeds[int(tx.Client)%n] <- tx
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}
	for _, feed := range feeds {
		close(feed)
	}
	wg.Wait()
	return err
}

// Snapshot merges the shard snapshots into one collection ordered by client
// id. Call only after Run has returned.
func (r *Runner) Snapshot() []engine.Account {
	if len(r.engines) == 1 {
		return r.engines[0].Snapshot()
	}
	parts := make([][]engine.Account, len(r.engines))
	total := 0
	for i, eng := range r.engines {
		parts[i] = eng.Snapshot()
		total += len(parts[i])
	}
	// K-way merge over already sorted shard snapshots.
	out := make([]engine.Account, 0, total)
	idx := make([]int, len(parts))
	for len(out) < total {
		best := -1
		for i, part := range parts {
			if idx[i] >= len(part) {
				continue
			}
			if best == -1 || part[idx[i]].Client < parts[best][idx[best]].Client {
				best = i
			}
		}
		out = append(out, parts[best][idx[best]])
		idx[best]++
	}
	return out
}

// Size sums account and locked-account counts across shards.
func (r *Runner) Size() (accounts, locked int) {
	for _, eng := range r.engines {
		a, l := eng.Size()
		accounts += a
		locked += l
	}
	return accounts, locked
}
