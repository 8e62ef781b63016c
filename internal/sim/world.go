package sim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"tracks-and-trains/server/logging"
	logsim "tracks-and-trains/server/logging/simulation"

	"tracks-and-trains/server/internal/rail"
)

// Deps carries the optional collaborators of a World. Zero values disable
// the concern.
type Deps struct {
	Publisher logging.Publisher
	Metrics   telemetryMetrics
	Oracle    CollisionOracle
}

// World is the single-writer simulation context. All mutation happens through
// Apply and Step, called from one goroutine; reads used by other goroutines
// go through the hub, which serializes them against the tick loop.
type World struct {
	cfg    Config
	graph  *rail.Graph
	trains map[string]*trainState
	tick   uint64

	nextTrain uint64

	publisher logging.Publisher
	metrics   telemetryMetrics
	oracle    CollisionOracle
}

// NewWorld constructs an empty world with normalized configuration.
func NewWorld(cfg Config, deps Deps) *World {
	w := &World{
		cfg:       cfg.normalized(),
		graph:     rail.NewGraph(),
		trains:    make(map[string]*trainState),
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		oracle:    deps.Oracle,
	}
	if w.publisher == nil {
		w.publisher = logging.NopPublisher()
	}
	if w.oracle == nil {
		w.oracle = IntervalOracle{}
	}
	return w
}

// Config returns the normalized configuration.
func (w *World) Config() Config { return w.cfg }

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 { return w.tick }

// Apply drains a batch of commands strictly between ticks. Every command
// fully applies or fully fails with a typed reason.
func (w *World) Apply(commands []Command) []CommandResult {
	results := make([]CommandResult, 0, len(commands))
	for _, cmd := range commands {
		result := CommandResult{ActorID: cmd.ActorID, Type: cmd.Type, Tick: w.tick, OK: true}
		if err := w.applyCommand(cmd, &result); err != nil {
			result.OK = false
			result.Reason = reasonFor(err)
			if w.metrics != nil {
				w.metrics.Add("sim_commands_rejected_total", 1)
			}
		}
		results = append(results, result)
	}
	return results
}

func (w *World) applyCommand(cmd Command, result *CommandResult) error {
	switch cmd.Type {
	case CommandPlaceSegment:
		if cmd.PlaceSegment == nil {
			return ErrBadCommand
		}
		return w.applyPlaceSegment(*cmd.PlaceSegment, result)
	case CommandRemoveSegment:
		if cmd.RemoveSegment == nil {
			return ErrBadCommand
		}
		return w.applyRemoveSegment(*cmd.RemoveSegment, result)
	case CommandSetSwitch:
		if cmd.SetSwitch == nil {
			return ErrBadCommand
		}
		return w.graph.SetSwitch(cmd.SetSwitch.Junction, cmd.SetSwitch.Arrival, cmd.SetSwitch.Exit)
	case CommandSpawnTrain:
		if cmd.SpawnTrain == nil {
			return ErrBadCommand
		}
		return w.applySpawnTrain(*cmd.SpawnTrain, result)
	case CommandDespawnTrain:
		if cmd.DespawnTrain == nil {
			return ErrBadCommand
		}
		return w.applyDespawnTrain(*cmd.DespawnTrain)
	case CommandDispatch:
		if cmd.Dispatch == nil {
			return ErrBadCommand
		}
		return w.applyDispatch(*cmd.Dispatch, result)
	case CommandSetThrottle:
		if cmd.SetThrottle == nil {
			return ErrBadCommand
		}
		return w.applySetThrottle(*cmd.SetThrottle)
	case CommandReverse:
		if cmd.Reverse == nil {
			return ErrBadCommand
		}
		return w.applyReverse(*cmd.Reverse)
	case CommandHeartbeat:
		return nil
	default:
		return fmt.Errorf("%w: type %q", ErrBadCommand, cmd.Type)
	}
}

func (w *World) applyPlaceSegment(cmd PlaceSegmentCommand, result *CommandResult) error {
	id, err := w.graph.PlaceSegmentAt(cmd.CoordA, cmd.PortA, cmd.CoordB, cmd.PortB)
	if err != nil {
		return err
	}
	result.Segment = id
	seg, _ := w.graph.Segment(id)
	logsim.SegmentPlaced(context.Background(), w.publisher, w.tick,
		logging.EntityRef{ID: fmt.Sprintf("%d", id), Kind: logging.EntityKindSegment},
		logsim.SegmentPayload{
			Segment:   uint64(id),
			JunctionA: uint64(seg.A.Junction),
			JunctionB: uint64(seg.B.Junction),
			Length:    seg.Length,
		}, nil)
	return nil
}

func (w *World) applyRemoveSegment(cmd RemoveSegmentCommand, result *CommandResult) error {
	seg, err := w.graph.Segment(cmd.Segment)
	if err != nil {
		return err
	}
	occ := w.occupancySnapshot()
	if len(occ[cmd.Segment]) > 0 {
		return fmt.Errorf("segment %d: %w", cmd.Segment, rail.ErrSegmentOccupied)
	}
	payload := logsim.SegmentPayload{
		Segment:   uint64(seg.ID),
		JunctionA: uint64(seg.A.Junction),
		JunctionB: uint64(seg.B.Junction),
		Length:    seg.Length,
	}
	if err := w.graph.RemoveSegment(cmd.Segment); err != nil {
		return err
	}
	result.Segment = cmd.Segment
	logsim.SegmentRemoved(context.Background(), w.publisher, w.tick,
		logging.EntityRef{ID: fmt.Sprintf("%d", cmd.Segment), Kind: logging.EntityKindSegment},
		payload, nil)
	return nil
}

func (w *World) applySpawnTrain(cmd SpawnTrainCommand, result *CommandResult) error {
	if _, err := w.graph.Segment(cmd.Segment); err != nil {
		return err
	}
	dir := cmd.Dir
	if dir != rail.Reverse {
		dir = rail.Forward
	}
	progress := cmd.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	w.nextTrain++
	t := &trainState{
		ID:       fmt.Sprintf("train-%d", w.nextTrain),
		Segment:  cmd.Segment,
		Progress: progress,
		Dir:      dir,
		State:    TrainIdle,
	}
	occ := w.occupancySnapshot()
	for _, fp := range w.footprintOf(t) {
		for _, other := range occ[fp.Segment] {
			if overlaps(fp, other) {
				w.nextTrain--
				return fmt.Errorf("segment %d: %w", fp.Segment, rail.ErrSegmentOccupied)
			}
		}
	}
	w.trains[t.ID] = t
	result.Train = t.ID
	logsim.TrainSpawned(context.Background(), w.publisher, w.tick,
		logging.EntityRef{ID: t.ID, Kind: logging.EntityKindTrain}, nil)
	return nil
}

func (w *World) applyDespawnTrain(cmd DespawnTrainCommand) error {
	if _, ok := w.trains[cmd.Train]; !ok {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrUnknownTrain)
	}
	delete(w.trains, cmd.Train)
	return nil
}

func (w *World) applyDispatch(cmd DispatchCommand, result *CommandResult) error {
	t, ok := w.trains[cmd.Train]
	if !ok {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrUnknownTrain)
	}
	route, err := w.graph.FindRoute(t.Segment, t.Dir, cmd.Destination)
	if err != nil {
		return err
	}
	// The route replaces any prior one wholesale; a crashed train is cleared
	// by a successful dispatch.
	t.Route = route
	t.Destination = cmd.Destination
	t.Throttle = 1
	if t.State == TrainCrashed || t.State == TrainIdle {
		t.State = TrainMoving
	}
	result.Train = t.ID
	length, _ := w.graph.RouteLength(route)
	segments := make([]uint64, len(route))
	for i, id := range route {
		segments[i] = uint64(id)
	}
	logsim.TrainDispatched(context.Background(), w.publisher, w.tick,
		logging.EntityRef{ID: t.ID, Kind: logging.EntityKindTrain},
		logsim.TrainDispatchedPayload{
			Destination: uint64(cmd.Destination),
			Segments:    segments,
			Length:      length,
		}, nil)
	return nil
}

func (w *World) applySetThrottle(cmd SetThrottleCommand) error {
	t, ok := w.trains[cmd.Train]
	if !ok {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrUnknownTrain)
	}
	if t.State == TrainCrashed {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrTrainCrashed)
	}
	throttle := cmd.Throttle
	if throttle < 0 {
		throttle = 0
	}
	if throttle > 1 {
		throttle = 1
	}
	t.Throttle = throttle
	if throttle > 0 && t.State == TrainIdle {
		t.State = TrainMoving
	}
	return nil
}

func (w *World) applyReverse(cmd ReverseCommand) error {
	t, ok := w.trains[cmd.Train]
	if !ok {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrUnknownTrain)
	}
	if t.Speed != 0 {
		return fmt.Errorf("train %q: %w", cmd.Train, ErrTrainMoving)
	}
	t.Dir = t.Dir.Flip()
	t.Route = nil
	t.Destination = 0
	t.Throttle = 0
	t.prevSegment = 0
	if t.State != TrainCrashed {
		t.State = TrainIdle
	}
	return nil
}

// TrackSnapshot returns the current network for rendering reads.
func (w *World) TrackSnapshot() rail.GraphSnapshot {
	return w.graph.Snapshot()
}

// TrainViews returns the broadcast view of every train ordered by id.
func (w *World) TrainViews() []Train {
	out := make([]Train, 0, len(w.trains))
	for _, id := range w.sortedTrainIDs() {
		t := w.trains[id]
		view := Train{
			ID:       t.ID,
			Segment:  t.Segment,
			Progress: t.Progress,
			Dir:      t.Dir,
			Speed:    t.Speed,
			State:    t.State,
			Route:    append([]rail.SegmentID(nil), t.Route...),
		}
		if seg, err := w.graph.Segment(t.Segment); err == nil {
			pos := seg.Curve.PointAt(t.Progress)
			view.X = pos.X
			view.Y = pos.Y
			heading := seg.Curve.HeadingAt(t.Progress)
			if t.Dir == rail.Reverse {
				heading += math.Pi
				if heading > math.Pi {
					heading -= 2 * math.Pi
				}
			}
			view.Heading = heading
		}
		out = append(out, view)
	}
	return out
}

// Footprints returns every train footprint, for the collision oracle and for
// diagnostics.
func (w *World) Footprints() []Footprint {
	var out []Footprint
	for _, id := range w.sortedTrainIDs() {
		out = append(out, w.footprintOf(w.trains[id])...)
	}
	return out
}

func (w *World) sortedTrainIDs() []string {
	ids := make([]string, 0, len(w.trains))
	for id := range w.trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func overlaps(a, b Footprint) bool {
	const touchEpsilon = 1e-9
	return a.Segment == b.Segment && a.Lo < b.Hi-touchEpsilon && b.Lo < a.Hi-touchEpsilon
}
