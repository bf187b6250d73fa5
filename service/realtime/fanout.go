package realtime

import (
	"hash/fnv"

	"teamchat/tools/safe"
)

type fanoutJob struct {
	conn    *Client
	payload []byte
}

// Fanout spreads broadcast writes across a fixed set of workers so one
// large room cannot stall the callers. A connection is pinned to one
// worker by its id: everything queued for a session flows through a
// single FIFO shard, so two broadcasts to the same recipient are always
// delivered in submit order.
type Fanout struct {
	shards []chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	f := &Fanout{shards: make([]chan fanoutJob, workers)}
	for i := range f.shards {
		ch := make(chan fanoutJob, queue)
		f.shards[i] = ch
		safe.Go("realtime-fanout", func() {
			for job := range ch {
				// full or closed sessions are skipped, never blocked on
				job.conn.Enqueue(job.payload)
			}
		})
	}
	return f
}

// Broadcast enqueues the payload for every listed connection. Callers
// submit from a single goroutine; the shard queues preserve that order
// per connection.
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	for _, c := range conns {
		shard := f.shards[f.shardFor(c.ConnID)]
		select {
		case shard <- fanoutJob{conn: c, payload: payload}:
		default:
			// shard backlog full, drop like a slow client
		}
	}
}

func (f *Fanout) shardFor(connID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % uint32(len(f.shards)))
}
