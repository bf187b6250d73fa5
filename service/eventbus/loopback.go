package eventbus

import (
	"context"
	"sync"

	"teamchat/logger"
	"teamchat/module/messaging/dispatch"
	"teamchat/tools/safe"
)

// Loopback is the single-process bus: one buffered channel drained by one
// goroutine, which trivially preserves publish order for every partition
// key. Used when kafka is disabled.
type Loopback struct {
	ch        chan dispatch.Event
	handler   Handler
	closeOnce sync.Once
	done      chan struct{}
}

func NewLoopback(handler Handler, queue int) *Loopback {
	if queue <= 0 {
		queue = 1024
	}
	b := &Loopback{
		ch:      make(chan dispatch.Event, queue),
		handler: handler,
		done:    make(chan struct{}),
	}
	safe.Go("eventbus-loopback", b.run)
	return b
}

func (b *Loopback) run() {
	defer close(b.done)
	for ev := range b.ch {
		b.handler(context.Background(), ev)
	}
}

// Publish enqueues the event. Blocks while the queue is full rather than
// reordering or dropping.
func (b *Loopback) Publish(ctx context.Context, ev dispatch.Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		logger.Warnf("[eventbus] publish cancelled type=%s key=%s", ev.Type, ev.PartitionKey())
		return ctx.Err()
	}
}

// Close drains the queue and waits for the consumer to finish.
func (b *Loopback) Close() error {
	b.closeOnce.Do(func() { close(b.ch) })
	<-b.done
	return nil
}
