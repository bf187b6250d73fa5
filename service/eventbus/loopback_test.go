package eventbus

import (
	"context"
	"sync"
	"testing"

	"teamchat/module/messaging/dispatch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	bus := NewLoopback(func(_ context.Context, ev dispatch.Event) {
		mu.Lock()
		got = append(got, ev.ConversationID)
		mu.Unlock()
	}, 16)

	ctx := context.Background()
	for _, conv := range []string{"a", "b", "a", "c", "a"} {
		ev := dispatch.NewEvent(dispatch.MessageSent)
		ev.ConversationID = conv
		require.NoError(t, bus.Publish(ctx, ev))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"a", "b", "a", "c", "a"}, got)
}

func TestLoopbackCloseIdempotent(t *testing.T) {
	bus := NewLoopback(func(context.Context, dispatch.Event) {}, 1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
}
