package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	logsim "tracks-and-trains/server/logging/simulation"

	"tracks-and-trains/server/internal/rail"
)

// TrainRecord is the lossless serialized form of one train.
type TrainRecord struct {
	ID          string           `json:"id"`
	Segment     rail.SegmentID   `json:"segment"`
	Progress    float64          `json:"progress"`
	Dir         rail.TravelDir   `json:"dir"`
	Speed       float64          `json:"speed"`
	Throttle    float64          `json:"throttle"`
	Route       []rail.SegmentID `json:"route,omitempty"`
	State       TrainState       `json:"state"`
	Destination rail.JunctionID  `json:"destination,omitempty"`
	PrevSegment rail.SegmentID   `json:"prevSegment,omitempty"`
	PrevDir     rail.TravelDir   `json:"prevDir,omitempty"`
}

// Snapshot captures the whole world: track network, switch selections,
// trains, and the tick counter, sufficient to resume bit-for-bit.
type Snapshot struct {
	ID     string             `json:"id"`
	Tick   uint64             `json:"tick"`
	Config Config             `json:"config"`
	Graph  rail.GraphSnapshot `json:"graph"`
	Trains []TrainRecord      `json:"trains"`
}

// Snapshot captures the current world state under a fresh identifier.
func (w *World) Snapshot() Snapshot {
	trains := make([]TrainRecord, 0, len(w.trains))
	for _, id := range w.sortedTrainIDs() {
		t := w.trains[id]
		trains = append(trains, TrainRecord{
			ID:          t.ID,
			Segment:     t.Segment,
			Progress:    t.Progress,
			Dir:         t.Dir,
			Speed:       t.Speed,
			Throttle:    t.Throttle,
			Route:       append([]rail.SegmentID(nil), t.Route...),
			State:       t.State,
			Destination: t.Destination,
			PrevSegment: t.prevSegment,
			PrevDir:     t.prevDir,
		})
	}
	return Snapshot{
		ID:     uuid.NewString(),
		Tick:   w.tick,
		Config: w.cfg,
		Graph:  w.graph.Snapshot(),
		Trains: trains,
	}
}

// Restore replaces the world state from a snapshot. Everything is validated
// against the rebuilt graph before anything is swapped in; a failed restore
// leaves the prior state untouched.
func (w *World) Restore(snap Snapshot) error {
	graph, err := rail.RestoreGraph(snap.Graph)
	if err != nil {
		return err
	}

	trains := make(map[string]*trainState, len(snap.Trains))
	highest := uint64(0)
	for _, rec := range snap.Trains {
		if rec.ID == "" {
			return fmt.Errorf("train with empty id: %w", rail.ErrInconsistentSnapshot)
		}
		if _, dup := trains[rec.ID]; dup {
			return fmt.Errorf("duplicate train %q: %w", rec.ID, rail.ErrInconsistentSnapshot)
		}
		if _, err := graph.Segment(rec.Segment); err != nil {
			return fmt.Errorf("train %q references segment %d: %w", rec.ID, rec.Segment, rail.ErrInconsistentSnapshot)
		}
		if rec.Progress < 0 || rec.Progress > 1 {
			return fmt.Errorf("train %q progress %f out of range: %w", rec.ID, rec.Progress, rail.ErrInconsistentSnapshot)
		}
		dir := rec.Dir
		if dir != rail.Forward && dir != rail.Reverse {
			return fmt.Errorf("train %q direction %d: %w", rec.ID, dir, rail.ErrInconsistentSnapshot)
		}
		if len(rec.Route) > 0 && rec.Route[0] != rec.Segment {
			return fmt.Errorf("train %q route does not start at its segment: %w", rec.ID, rail.ErrInconsistentSnapshot)
		}
		for _, segID := range rec.Route {
			if _, err := graph.Segment(segID); err != nil {
				return fmt.Errorf("train %q route references segment %d: %w", rec.ID, segID, rail.ErrInconsistentSnapshot)
			}
		}
		if rec.Destination != 0 {
			if _, err := graph.Junction(rec.Destination); err != nil {
				return fmt.Errorf("train %q destination %d: %w", rec.ID, rec.Destination, rail.ErrInconsistentSnapshot)
			}
		}
		prevSeg := rec.PrevSegment
		if prevSeg != 0 {
			if _, err := graph.Segment(prevSeg); err != nil {
				// A removed tail segment is not an integrity failure; the
				// spill just ends at the boundary.
				prevSeg = 0
			}
		}
		state := rec.State
		switch state {
		case TrainIdle, TrainMoving, TrainBraking, TrainBlocked, TrainCrashed:
		default:
			return fmt.Errorf("train %q state %q: %w", rec.ID, state, rail.ErrInconsistentSnapshot)
		}
		trains[rec.ID] = &trainState{
			ID:          rec.ID,
			Segment:     rec.Segment,
			Progress:    rec.Progress,
			Dir:         dir,
			Speed:       rec.Speed,
			Throttle:    rec.Throttle,
			Route:       append([]rail.SegmentID(nil), rec.Route...),
			State:       state,
			Destination: rec.Destination,
			prevSegment: prevSeg,
			prevDir:     rec.PrevDir,
		}
		if n, ok := trainOrdinal(rec.ID); ok && n > highest {
			highest = n
		}
	}

	w.graph = graph
	w.trains = trains
	w.tick = snap.Tick
	w.cfg = snap.Config.normalized()
	if highest > w.nextTrain {
		w.nextTrain = highest
	}
	logsim.SnapshotRestored(context.Background(), w.publisher, w.tick,
		logsim.SnapshotRestoredPayload{
			SnapshotID: snap.ID,
			Junctions:  len(snap.Graph.Junctions),
			Segments:   len(snap.Graph.Segments),
			Trains:     len(snap.Trains),
		}, nil)
	return nil
}

// trainOrdinal parses the counter out of generated train ids so restored
// worlds keep allocating fresh ids.
func trainOrdinal(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, "train-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SnapshotSchema returns the JSON Schema describing the snapshot wire format.
func SnapshotSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{}
	schema := reflector.Reflect(&Snapshot{})
	return json.MarshalIndent(schema, "", "  ")
}
