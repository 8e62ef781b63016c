package simulation

import (
	"context"

	"tracks-and-trains/server/logging"
)

const (
	// EventTrainSpawned is emitted when a train is placed on the network.
	EventTrainSpawned logging.EventType = "simulation.train_spawned"
	// EventTrainDispatched is emitted when a train accepts a route.
	EventTrainDispatched logging.EventType = "simulation.train_dispatched"
	// EventTrainArrived is emitted when a train reaches its destination.
	EventTrainArrived logging.EventType = "simulation.train_arrived"
	// EventTrainBlocked is emitted when a train stops short of an occupied segment.
	EventTrainBlocked logging.EventType = "simulation.train_blocked"
	// EventTrainCrashed is emitted when two train footprints overlap.
	EventTrainCrashed logging.EventType = "simulation.train_crashed"
	// EventSegmentPlaced is emitted when track is added to the network.
	EventSegmentPlaced logging.EventType = "simulation.segment_placed"
	// EventSegmentRemoved is emitted when track is removed from the network.
	EventSegmentRemoved logging.EventType = "simulation.segment_removed"
	// EventSnapshotRestored is emitted when the world is replaced from a snapshot.
	EventSnapshotRestored logging.EventType = "simulation.snapshot_restored"
)

// TrainDispatchedPayload captures the accepted route.
type TrainDispatchedPayload struct {
	Destination uint64   `json:"destination"`
	Segments    []uint64 `json:"segments"`
	Length      float64  `json:"length"`
}

// TrainBlockedPayload names the segment the train cannot enter.
type TrainBlockedPayload struct {
	Segment uint64 `json:"segment"`
}

// TrainCrashedPayload names the segment where footprints overlapped.
type TrainCrashedPayload struct {
	Segment uint64 `json:"segment"`
}

// SegmentPayload carries endpoint metadata for placement and removal.
type SegmentPayload struct {
	Segment   uint64  `json:"segment"`
	JunctionA uint64  `json:"junctionA"`
	JunctionB uint64  `json:"junctionB"`
	Length    float64 `json:"length"`
}

// SnapshotRestoredPayload summarizes the restored world.
type SnapshotRestoredPayload struct {
	SnapshotID string `json:"snapshotId"`
	Junctions  int    `json:"junctions"`
	Segments   int    `json:"segments"`
	Trains     int    `json:"trains"`
}

// TrainSpawned publishes a train spawn event.
func TrainSpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTrainSpawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Extra:    extra,
	})
}

// TrainDispatched publishes a route acceptance event.
func TrainDispatched(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TrainDispatchedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTrainDispatched,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// TrainArrived publishes an arrival event.
func TrainArrived(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTrainArrived,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Extra:    extra,
	})
}

// TrainBlocked publishes a blocked stop event.
func TrainBlocked(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TrainBlockedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTrainBlocked,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// TrainCrashed publishes a collision event.
func TrainCrashed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, targets []logging.EntityRef, payload TrainCrashedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTrainCrashed,
		Tick:     tick,
		Actor:    actor,
		Targets:  targets,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// SegmentPlaced publishes a track placement event.
func SegmentPlaced(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SegmentPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSegmentPlaced,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// SegmentRemoved publishes a track removal event.
func SegmentRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SegmentPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSegmentRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// SnapshotRestored publishes a world restore event.
func SnapshotRestored(ctx context.Context, pub logging.Publisher, tick uint64, payload SnapshotRestoredPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSnapshotRestored,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
