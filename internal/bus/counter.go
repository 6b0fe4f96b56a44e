package bus

import (
	"context"
	"maps"
	"sync"
)

// Counter tallies events per kind. The daemon status report reads it.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int64)}
}

// Run counts every event on b until ctx is done.
func (c *Counter) Run(ctx context.Context, b *Bus) {
	ch, unsub := b.Subscribe("", 256)
	defer unsub()
	for {
		select {
		case evt := <-ch:
			c.mu.Lock()
			c.counts[evt.Kind]++
			c.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Get returns the count for one kind.
func (c *Counter) Get(kind string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Snapshot returns a copy of all counts.
func (c *Counter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}
