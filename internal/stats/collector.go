// Package stats observes the events routed through the service.
package stats

import (
	"context"
	"maps"
	"sync"

	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/metrics"
	"go.uber.org/zap"
)

// Collector subscribes to every event on the bus and keeps per-kind counts,
// both in memory and in the dm_events_total counter.
type Collector struct {
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	counts map[string]uint64
}

// NewCollector creates a new collector.
func NewCollector(b *bus.Bus, logger *zap.Logger) *Collector {
	return &Collector{
		bus:    b,
		logger: logger.Named("stats"),
		counts: make(map[string]uint64),
	}
}

// Start subscribes to the bus.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.Subscribe("", 1024)

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector and waits for its goroutine to exit.
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// Counts returns a snapshot of events seen per kind.
func (c *Collector) Counts() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}

func (c *Collector) handleEvent(evt bus.Event) {
	c.mu.Lock()
	c.counts[evt.Kind]++
	c.mu.Unlock()

	metrics.Events.WithLabelValues(evt.Kind).Inc()
	c.logger.Debug("event",
		zap.String("kind", evt.Kind),
		zap.String("target", evt.Target),
		zap.Time("at", evt.Timestamp))
}
