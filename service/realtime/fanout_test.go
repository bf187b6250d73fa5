package realtime

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastKeepsPerSessionOrder(t *testing.T) {
	const (
		workers  = 4
		sessions = 40
		rounds   = 150
	)
	// queue sized above the total job count so nothing is shed mid-test
	f := NewFanout(workers, workers*sessions*rounds)

	clients := make([]*Client, sessions)
	for i := range clients {
		clients[i] = NewClient("c"+strconv.Itoa(i), "u"+strconv.Itoa(i), nil, rounds)
	}

	for seq := 0; seq < rounds; seq++ {
		f.Broadcast(clients, []byte(strconv.Itoa(seq)))
	}

	for _, c := range clients {
		for seq := 0; seq < rounds; seq++ {
			got := string(recv(t, c.Send))
			require.Equal(t, strconv.Itoa(seq), got,
				"conn %s received broadcasts out of submit order", c.ConnID)
		}
	}
}

func TestTeardownDuringBroadcastDoesNotPanic(t *testing.T) {
	f := NewFanout(4, 1024)

	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = NewClient("c"+strconv.Itoa(i), "u"+strconv.Itoa(i), nil, 4)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f.Broadcast(clients, []byte("x"))
		}
	}()

	// sessions tear down while jobs holding their handles are still queued
	for _, c := range clients {
		c.Close()
	}
	wg.Wait()

	f.Broadcast(clients, []byte("late"))
}

func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	c := NewClient("c1", "alice", nil, 8)
	require.True(t, c.Enqueue([]byte("hi")))

	c.Close()
	c.Close() // idempotent

	assert.False(t, c.Enqueue([]byte("too late")))
}
