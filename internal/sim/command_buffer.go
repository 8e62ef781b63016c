package sim

import "sync"

const (
	commandQueueDepthMetricKey   = "sim_command_queue_depth"
	commandQueueDroppedMetricKey = "sim_command_queue_dropped_total"
)

// CommandBuffer holds the build and dispatch commands staged between ticks in
// a fixed-size ring: websocket readers push concurrently, the tick loop
// drains once per tick. A full ring rejects the push so a flooding client
// cannot stall the tick; the hub reports the rejection back as a retryable
// queue-limit reject.
type CommandBuffer struct {
	mu      sync.Mutex
	ring    []Command
	start   int
	end     int
	size    int
	metrics telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewCommandBuffer constructs a ring holding at most capacity commands.
func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		ring:    make([]Command, capacity),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of commands the buffer can hold.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Push stages a command for the next tick, returning false when the ring is
// full.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == len(b.ring) {
		if b.metrics != nil {
			b.metrics.Add(commandQueueDroppedMetricKey, 1)
		}
		return false
	}
	b.ring[b.end] = cmd
	b.end = (b.end + 1) % len(b.ring)
	b.size++
	b.storeDepthLocked()
	return true
}

// Drain returns every staged command in arrival order and empties the ring.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return nil
	}
	commands := make([]Command, b.size)
	for i := 0; i < b.size; i++ {
		commands[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	b.start = 0
	b.end = 0
	b.size = 0
	b.storeDepthLocked()
	return commands
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *CommandBuffer) storeDepthLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandQueueDepthMetricKey, uint64(b.size))
}
