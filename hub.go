// Package server hosts the hub that bridges the tick-driven simulation and
// the websocket clients building and driving trains on the shared network.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tracks-and-trains/server/logging"
	lognet "tracks-and-trains/server/logging/network"

	"tracks-and-trains/server/internal/sim"
	"tracks-and-trains/server/internal/telemetry"
)

// Subscriber wraps a websocket connection with a write lock so the broadcast
// goroutine and the per-connection reader never interleave frames.
type Subscriber struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	lastSeq atomic.Uint64
}

// WriteMessage serializes writes to the underlying connection.
func (s *Subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// StoreLastCommandSeq records the highest acknowledged command sequence.
func (s *Subscriber) StoreLastCommandSeq(seq uint64) {
	s.lastSeq.Store(seq)
}

// LastCommandSeq returns the highest acknowledged command sequence.
func (s *Subscriber) LastCommandSeq() uint64 {
	return s.lastSeq.Load()
}

type clientState struct {
	id            string
	joinedAt      time.Time
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// HubDeps carries the hub's collaborators. Zero values disable the concern.
type HubDeps struct {
	Publisher logging.Publisher
	Metrics   *logging.Metrics
	Logger    telemetry.Logger
}

// Hub owns the world and serializes every read and write against the tick
// loop. Commands arrive concurrently through the ring buffer and are drained
// at the next tick boundary.
type Hub struct {
	mu          sync.Mutex
	cfg         sim.Config
	world       *sim.World
	buffer      *sim.CommandBuffer
	clients     map[string]*clientState
	subscribers map[string]*Subscriber

	nextID atomic.Uint64

	publisher logging.Publisher
	metrics   *logging.Metrics
	logger    telemetry.Logger
}

// NewHub constructs a hub around a fresh world.
func NewHub(cfg sim.Config, deps HubDeps) *Hub {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	metrics := telemetry.WrapMetrics(deps.Metrics)
	world := sim.NewWorld(cfg, sim.Deps{Publisher: publisher, Metrics: metrics})
	normalized := world.Config()
	return &Hub{
		cfg:         normalized,
		world:       world,
		buffer:      sim.NewCommandBuffer(normalized.CommandBufferSize, metrics),
		clients:     make(map[string]*clientState),
		subscribers: make(map[string]*Subscriber),
		publisher:   publisher,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// TickRate reports the simulation tick rate in ticks per second.
func (h *Hub) TickRate() int { return h.cfg.TickRate }

// CurrentConfig returns the normalized simulation configuration.
func (h *Hub) CurrentConfig() sim.Config { return h.cfg }

// Join registers a new client and returns its id plus the full world state.
func (h *Hub) Join() JoinResponse {
	id := fmt.Sprintf("client-%d", h.nextID.Add(1))
	now := time.Now()

	h.mu.Lock()
	h.clients[id] = &clientState{id: id, joinedAt: now, lastHeartbeat: now}
	tick := h.world.Tick()
	track := h.world.TrackSnapshot()
	trains := h.world.TrainViews()
	h.mu.Unlock()

	lognet.ClientJoined(context.Background(), h.publisher, tick,
		logging.EntityRef{ID: id, Kind: logging.EntityKindClient}, nil)

	return JoinResponse{
		Ver:        ProtocolVersion,
		ID:         id,
		TickRate:   h.cfg.TickRate,
		Config:     h.cfg,
		Track:      track,
		Trains:     trains,
		ServerTime: now.UnixMilli(),
	}
}

// Subscribe attaches a websocket connection to a joined client. It fails when
// the client id is unknown.
func (h *Hub) Subscribe(id string, conn *websocket.Conn) (*Subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return nil, false
	}
	if prev, ok := h.subscribers[id]; ok {
		prev.conn.Close()
	}
	sub := &Subscriber{conn: conn}
	h.subscribers[id] = sub
	return sub, true
}

// Disconnect removes a client and closes its subscription, if any.
func (h *Hub) Disconnect(id, reason string) {
	h.mu.Lock()
	_, known := h.clients[id]
	delete(h.clients, id)
	sub, subscribed := h.subscribers[id]
	delete(h.subscribers, id)
	tick := h.world.Tick()
	h.mu.Unlock()

	if subscribed {
		sub.conn.Close()
	}
	if known {
		lognet.ClientDisconnected(context.Background(), h.publisher, tick,
			logging.EntityRef{ID: id, Kind: logging.EntityKindClient},
			lognet.ClientDisconnectedPayload{Reason: reason}, nil)
	}
}

// UpdateHeartbeat records client liveness and returns the measured RTT.
func (h *Hub) UpdateHeartbeat(id string, now time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return 0, false
	}
	rtt := now.Sub(time.UnixMilli(clientSent))
	if rtt < 0 {
		rtt = 0
	}
	client.lastHeartbeat = now
	client.lastRTT = rtt
	tick := h.world.Tick()
	h.mu.Unlock()

	h.buffer.Push(sim.Command{
		OriginTick: tick,
		ActorID:    id,
		Type:       sim.CommandHeartbeat,
		IssuedAt:   now,
		Heartbeat:  &sim.HeartbeatCommand{ReceivedAt: now, ClientSent: clientSent, RTT: rtt},
	})
	return rtt, true
}

// EnqueueCommand stages a command for the next tick. The boolean reports
// acceptance into the queue, not application; application results travel in
// the state broadcast.
func (h *Hub) EnqueueCommand(actorID string, cmd sim.Command) (sim.Command, bool, string) {
	h.mu.Lock()
	_, known := h.clients[actorID]
	tick := h.world.Tick()
	h.mu.Unlock()

	if !known {
		return sim.Command{}, false, CommandRejectUnknownClient
	}
	if !commandHasPayload(cmd) {
		h.rejectCommand(actorID, tick, cmd, CommandRejectInvalidPayload)
		return sim.Command{}, false, CommandRejectInvalidPayload
	}

	cmd.ActorID = actorID
	cmd.OriginTick = tick
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now()
	}
	if !h.buffer.Push(cmd) {
		h.rejectCommand(actorID, tick, cmd, CommandRejectQueueLimit)
		return sim.Command{}, false, CommandRejectQueueLimit
	}
	return cmd, true, ""
}

func (h *Hub) rejectCommand(actorID string, tick uint64, cmd sim.Command, reason string) {
	lognet.CommandRejected(context.Background(), h.publisher, tick,
		logging.EntityRef{ID: actorID, Kind: logging.EntityKindClient},
		lognet.CommandRejectedPayload{Command: string(cmd.Type), Reason: reason}, nil)
}

// RunSimulation drives the tick loop until stop is closed.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	interval := time.Second / time.Duration(h.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.advance(now)
		}
	}
}

// advance drains staged commands, applies them, steps the world one tick and
// broadcasts the resulting state.
func (h *Hub) advance(now time.Time) {
	h.mu.Lock()
	commands := h.buffer.Drain()
	results := h.world.Apply(commands)
	h.world.Step()
	msg := h.stateMessageLocked(now, results)
	subs := make(map[string]*Subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	h.broadcast(msg, subs)
}

func (h *Hub) stateMessageLocked(now time.Time, results []sim.CommandResult) stateMessage {
	filtered := results[:0]
	for _, res := range results {
		if res.Type == sim.CommandHeartbeat {
			continue
		}
		filtered = append(filtered, res)
	}
	if len(filtered) == 0 {
		filtered = nil
	}
	return stateMessage{
		Ver:        ProtocolVersion,
		Type:       "state",
		Tick:       h.world.Tick(),
		ServerTime: now.UnixMilli(),
		Track:      h.world.TrackSnapshot(),
		Trains:     h.world.TrainViews(),
		Results:    filtered,
	}
}

func (h *Hub) broadcast(msg stateMessage, subs map[string]*Subscriber) {
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal state broadcast: %v", err)
		return
	}
	var failed []string
	for id, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Disconnect(id, "write failed")
	}
	if h.metrics != nil {
		h.metrics.TelemetryAdd("hub_broadcast_total", 1)
		h.metrics.TelemetryStore("hub_broadcast_bytes", uint64(len(data)))
	}
}

// MarshalState serializes the current full state, used for the initial frame
// on subscribe.
func (h *Hub) MarshalState() ([]byte, error) {
	h.mu.Lock()
	msg := h.stateMessageLocked(time.Now(), nil)
	h.mu.Unlock()
	return json.Marshal(msg)
}

// Snapshot captures the current world under a fresh identifier.
func (h *Hub) Snapshot() sim.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Snapshot()
}

// RestoreSnapshot replaces the world state atomically. On failure the running
// world is untouched.
func (h *Hub) RestoreSnapshot(snap sim.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.world.Restore(snap); err != nil {
		return err
	}
	h.cfg = h.world.Config()
	return nil
}

// Tick reports the number of completed simulation ticks.
func (h *Hub) Tick() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Tick()
}

// DiagnosticsSnapshot lists connected clients for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []ClientDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ClientDiagnostics, 0, len(h.clients))
	for id, client := range h.clients {
		_, subscribed := h.subscribers[id]
		out = append(out, ClientDiagnostics{
			ID:            id,
			JoinedAt:      client.joinedAt.UnixMilli(),
			LastHeartbeat: client.lastHeartbeat.UnixMilli(),
			RTTMillis:     client.lastRTT.Milliseconds(),
			Subscribed:    subscribed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TelemetrySnapshot exposes the metrics counters for diagnostics.
func (h *Hub) TelemetrySnapshot() map[string]uint64 {
	if h.metrics == nil {
		return nil
	}
	return h.metrics.TelemetrySnapshot()
}

func commandHasPayload(cmd sim.Command) bool {
	switch cmd.Type {
	case sim.CommandPlaceSegment:
		return cmd.PlaceSegment != nil
	case sim.CommandRemoveSegment:
		return cmd.RemoveSegment != nil
	case sim.CommandSetSwitch:
		return cmd.SetSwitch != nil
	case sim.CommandSpawnTrain:
		return cmd.SpawnTrain != nil
	case sim.CommandDespawnTrain:
		return cmd.DespawnTrain != nil
	case sim.CommandDispatch:
		return cmd.Dispatch != nil
	case sim.CommandSetThrottle:
		return cmd.SetThrottle != nil
	case sim.CommandReverse:
		return cmd.Reverse != nil
	case sim.CommandHeartbeat:
		return cmd.Heartbeat != nil
	default:
		return false
	}
}
