package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"tracks-and-trains/server/logging"
	lognet "tracks-and-trains/server/logging/network"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/sim"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *eventRecorder) Publish(_ context.Context, event logging.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) byType(eventType logging.EventType) []logging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logging.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func placeSegmentCommand(q, r int, d hexgrid.Direction) sim.Command {
	from := hexgrid.Coord{Q: q, R: r}
	return sim.Command{
		Type: sim.CommandPlaceSegment,
		PlaceSegment: &sim.PlaceSegmentCommand{
			CoordA: from,
			PortA:  d,
			CoordB: from.Neighbor(d),
			PortB:  d.Opposite(),
		},
	}
}

func TestJoinAssignsSequentialClientIDs(t *testing.T) {
	recorder := &eventRecorder{}
	hub := NewHub(sim.Config{}, HubDeps{Publisher: recorder})

	first := hub.Join()
	second := hub.Join()

	if first.ID != "client-1" || second.ID != "client-2" {
		t.Fatalf("unexpected ids %q, %q", first.ID, second.ID)
	}
	if first.Ver != ProtocolVersion {
		t.Fatalf("unexpected protocol version %d", first.Ver)
	}
	if first.TickRate != hub.CurrentConfig().TickRate {
		t.Fatalf("join tick rate %d does not match config %d", first.TickRate, hub.CurrentConfig().TickRate)
	}
	if got := len(recorder.byType(lognet.EventClientJoined)); got != 2 {
		t.Fatalf("expected 2 join events, got %d", got)
	}
}

func TestEnqueueCommandUnknownClient(t *testing.T) {
	hub := NewHub(sim.Config{}, HubDeps{})

	_, ok, reason := hub.EnqueueCommand("client-404", placeSegmentCommand(0, 0, hexgrid.East))
	if ok || reason != CommandRejectUnknownClient {
		t.Fatalf("expected unknownClient rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestEnqueueCommandRejectsMissingPayload(t *testing.T) {
	recorder := &eventRecorder{}
	hub := NewHub(sim.Config{}, HubDeps{Publisher: recorder})
	join := hub.Join()

	_, ok, reason := hub.EnqueueCommand(join.ID, sim.Command{Type: sim.CommandDispatch})
	if ok || reason != CommandRejectInvalidPayload {
		t.Fatalf("expected invalidPayload rejection, got ok=%v reason=%q", ok, reason)
	}
	if got := len(recorder.byType(lognet.EventCommandRejected)); got != 1 {
		t.Fatalf("expected 1 reject event, got %d", got)
	}
}

func TestEnqueueCommandQueueLimit(t *testing.T) {
	hub := NewHub(sim.Config{CommandBufferSize: 1}, HubDeps{})
	join := hub.Join()

	if _, ok, reason := hub.EnqueueCommand(join.ID, placeSegmentCommand(0, 0, hexgrid.East)); !ok {
		t.Fatalf("first command rejected: %s", reason)
	}
	_, ok, reason := hub.EnqueueCommand(join.ID, placeSegmentCommand(1, 0, hexgrid.East))
	if ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected queueLimit rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestAdvanceAppliesStagedCommands(t *testing.T) {
	hub := NewHub(sim.Config{}, HubDeps{})
	join := hub.Join()

	staged, ok, reason := hub.EnqueueCommand(join.ID, placeSegmentCommand(0, 0, hexgrid.East))
	if !ok {
		t.Fatalf("enqueue rejected: %s", reason)
	}
	if staged.ActorID != join.ID {
		t.Fatalf("staged command actor %q, want %q", staged.ActorID, join.ID)
	}

	hub.advance(time.Now())

	if hub.Tick() != 1 {
		t.Fatalf("expected tick 1, got %d", hub.Tick())
	}
	snap := hub.Snapshot()
	if len(snap.Graph.Segments) != 1 {
		t.Fatalf("expected 1 segment after advance, got %d", len(snap.Graph.Segments))
	}
}

func TestHeartbeatUpdatesDiagnostics(t *testing.T) {
	hub := NewHub(sim.Config{}, HubDeps{})
	join := hub.Join()

	now := time.Now()
	rtt, ok := hub.UpdateHeartbeat(join.ID, now, now.Add(-20*time.Millisecond).UnixMilli())
	if !ok {
		t.Fatalf("heartbeat rejected for known client")
	}
	if rtt <= 0 {
		t.Fatalf("expected positive rtt, got %s", rtt)
	}
	if _, ok := hub.UpdateHeartbeat("client-404", now, now.UnixMilli()); ok {
		t.Fatalf("heartbeat accepted for unknown client")
	}

	diags := hub.DiagnosticsSnapshot()
	if len(diags) != 1 || diags[0].ID != join.ID {
		t.Fatalf("unexpected diagnostics %+v", diags)
	}
	if diags[0].RTTMillis <= 0 {
		t.Fatalf("diagnostics rtt not recorded: %+v", diags[0])
	}
}

func TestHeartbeatResultsOmittedFromBroadcast(t *testing.T) {
	hub := NewHub(sim.Config{}, HubDeps{})
	join := hub.Join()

	now := time.Now()
	if _, ok := hub.UpdateHeartbeat(join.ID, now, now.UnixMilli()); !ok {
		t.Fatalf("heartbeat rejected")
	}

	hub.mu.Lock()
	commands := hub.buffer.Drain()
	results := hub.world.Apply(commands)
	msg := hub.stateMessageLocked(now, results)
	hub.mu.Unlock()

	if len(msg.Results) != 0 {
		t.Fatalf("heartbeat results leaked into broadcast: %+v", msg.Results)
	}
}

func TestDisconnectPublishesReason(t *testing.T) {
	recorder := &eventRecorder{}
	hub := NewHub(sim.Config{}, HubDeps{Publisher: recorder})
	join := hub.Join()

	hub.Disconnect(join.ID, "client closed")

	events := recorder.byType(lognet.EventClientDisconnected)
	if len(events) != 1 {
		t.Fatalf("expected 1 disconnect event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(lognet.ClientDisconnectedPayload)
	if !ok || payload.Reason != "client closed" {
		t.Fatalf("unexpected payload %+v", events[0].Payload)
	}
	if got := len(hub.DiagnosticsSnapshot()); got != 0 {
		t.Fatalf("expected no clients after disconnect, got %d", got)
	}
}

func TestRestoreSnapshotReplacesWorld(t *testing.T) {
	hub := NewHub(sim.Config{}, HubDeps{})
	join := hub.Join()
	hub.EnqueueCommand(join.ID, placeSegmentCommand(0, 0, hexgrid.East))
	for i := 0; i < 3; i++ {
		hub.advance(time.Now())
	}
	snap := hub.Snapshot()

	restored := NewHub(sim.Config{}, HubDeps{})
	if err := restored.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.Tick() != hub.Tick() {
		t.Fatalf("tick mismatch after restore: %d vs %d", restored.Tick(), hub.Tick())
	}
	if got := len(restored.Snapshot().Graph.Segments); got != 1 {
		t.Fatalf("expected 1 segment after restore, got %d", got)
	}
}
