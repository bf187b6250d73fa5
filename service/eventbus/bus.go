package eventbus

import (
	"context"

	"teamchat/module/messaging/dispatch"
)

// Bus carries committed domain events from the write path to the
// dispatcher. Events sharing a partition key are delivered in publish
// order.
type Bus interface {
	Publish(ctx context.Context, ev dispatch.Event) error
	Close() error
}

// Handler consumes one event. The bus guarantees a single in-flight call
// per partition, so implementations need no ordering logic of their own.
type Handler func(ctx context.Context, ev dispatch.Event)
