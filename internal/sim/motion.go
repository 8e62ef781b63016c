package sim

import (
	"context"
	"math"

	"tracks-and-trains/server/logging"
	logsim "tracks-and-trains/server/logging/simulation"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/rail"
)

// minApproachSpeed keeps a braking train crawling the last stretch instead of
// asymptotically approaching its stop point, world units per second.
const minApproachSpeed = 0.05

// maxWalkSegments bounds every segment walk. The braking lookahead and the
// per-tick travel distance bound the walks already; this is the backstop that
// keeps a degenerate graph from turning a walk into an infinite loop.
const maxWalkSegments = 64

type stopKind int

const (
	stopNone stopKind = iota
	stopDestination
	stopBlocked
)

type switchAlign struct {
	junction rail.JunctionID
	arrival  hexgrid.Direction
	exit     hexgrid.Direction
}

// plan is one train's computed next state. All plans for a tick are computed
// against the same occupancy snapshot before any is committed.
type plan struct {
	id       string
	segment  rail.SegmentID
	progress float64
	dir      rail.TravelDir
	speed    float64
	route    []rail.SegmentID
	state    TrainState
	prevSeg  rail.SegmentID
	prevDir  rail.TravelDir
	throttle float64
	aligns   []switchAlign
	arrived  bool
	blocked  rail.SegmentID
}

// Step advances the simulation one tick: compute a plan per train from the
// tick-start snapshot, commit all plans, then run collision diagnostics.
func (w *World) Step() {
	occ := w.occupancySnapshot()
	ids := w.sortedTrainIDs()
	plans := make([]plan, 0, len(ids))
	for _, id := range ids {
		plans = append(plans, w.planTrain(w.trains[id], occ))
	}

	for i := range plans {
		w.commitPlan(&plans[i])
	}
	w.tick++
	if w.metrics != nil {
		w.metrics.Store("sim_tick", w.tick)
		w.metrics.Store("sim_trains", uint64(len(w.trains)))
	}
	w.runCollisionDiagnostics()
}

func (w *World) commitPlan(p *plan) {
	t, ok := w.trains[p.id]
	if !ok {
		return
	}
	for _, a := range p.aligns {
		// The target port is bound by construction; SetSwitch can only fail
		// if a concurrent removal raced the tick, which the command boundary
		// rules out.
		_ = w.graph.SetSwitch(a.junction, a.arrival, a.exit)
	}
	was := t.State
	t.Segment = p.segment
	t.Progress = p.progress
	t.Dir = p.dir
	t.Speed = p.speed
	t.Route = p.route
	t.State = p.state
	t.prevSegment, t.prevDir = p.prevSeg, p.prevDir
	t.Throttle = p.throttle
	if p.arrived {
		t.Destination = 0
		logsim.TrainArrived(context.Background(), w.publisher, w.tick,
			logging.EntityRef{ID: t.ID, Kind: logging.EntityKindTrain}, nil)
	}
	if t.State == TrainBlocked && was != TrainBlocked {
		logsim.TrainBlocked(context.Background(), w.publisher, w.tick,
			logging.EntityRef{ID: t.ID, Kind: logging.EntityKindTrain},
			logsim.TrainBlockedPayload{Segment: uint64(p.blocked)}, nil)
	}
}

func (w *World) planTrain(t *trainState, occ occupancy) plan {
	p := plan{
		id:       t.ID,
		segment:  t.Segment,
		progress: t.Progress,
		dir:      t.Dir,
		speed:    t.Speed,
		route:    t.Route,
		state:    t.State,
		prevSeg:  t.prevSegment,
		prevDir:  t.prevDir,
		throttle: t.Throttle,
	}
	if t.State == TrainCrashed {
		p.speed = 0
		return p
	}
	seg, err := w.graph.Segment(t.Segment)
	if err != nil {
		// The segment under the train vanished. Halt; only a dispatch from a
		// restored snapshot can recover it.
		p.speed = 0
		p.state = TrainBlocked
		return p
	}

	dt := w.cfg.tickInterval()
	stopDist, kind, aligns, blockedSeg := w.lookahead(t, seg, occ)
	p.aligns = aligns
	p.blocked = blockedSeg

	target := w.cfg.CruiseSpeed * t.Throttle
	allowed := target
	if kind != stopNone {
		if stopDist < 0 {
			stopDist = 0
		}
		limit := math.Sqrt(2 * w.cfg.MaxDecel * stopDist)
		if stopDist > 0 && limit < minApproachSpeed {
			limit = minApproachSpeed
		}
		if limit < allowed {
			allowed = limit
		}
	}

	speed := t.Speed
	if speed <= allowed {
		speed = math.Min(speed+w.cfg.MaxAccel*dt, allowed)
	} else {
		speed = math.Max(speed-w.cfg.MaxDecel*dt, 0)
	}

	dist := speed * dt
	hitStop := false
	if kind != stopNone && dist >= stopDist {
		// Pin travel at the stop point. Speed keeps ramping down under the
		// deceleration clamp rather than snapping to zero.
		dist = stopDist
		hitStop = true
		speed = math.Max(t.Speed-w.cfg.MaxDecel*dt, 0)
	}

	w.integrate(&p, seg, dist)

	powered := len(t.Route) > 0 || t.Throttle > 0
	switch {
	case hitStop && kind == stopDestination && speed == 0:
		p.route = nil
		p.throttle = 0
		p.arrived = true
		p.state = TrainIdle
	case speed == 0 && kind != stopNone && powered:
		p.state = TrainBlocked
	case speed == 0:
		p.state = TrainIdle
	case kind != stopNone && allowed < target:
		p.state = TrainBraking
	default:
		p.state = TrainMoving
	}
	p.speed = speed
	return p
}

// lookahead walks the track ahead of the train up to the braking lookahead
// distance and returns the distance to the nearest forced stop, if any: a
// footprint ahead (same segment or a later one), an unroutable junction, or
// the destination. It also collects the switch alignments the planned route
// needs; those commit with the plan, keeping the compute phase read-only.
func (w *World) lookahead(t *trainState, seg *rail.Segment, occ occupancy) (float64, stopKind, []switchAlign, rail.SegmentID) {
	var aligns []switchAlign
	cur := seg
	curDir := t.Dir
	route := t.Route
	if len(route) == 0 || route[0] != t.Segment {
		route = nil
	}

	if d, found := nearestObstruction(occ, cur, curDir, t.Progress, t.ID); found {
		return d, stopBlocked, nil, cur.ID
	}

	pos := distToEnd(cur, curDir, t.Progress)
	for legs := 0; pos <= w.cfg.BrakingLookahead && legs < maxWalkSegments; legs++ {
		leg := w.resolveLeg(route, cur, curDir)
		if leg.align {
			aligns = append(aligns, switchAlign{junction: leg.junction, arrival: leg.arrival, exit: leg.exitPort})
		}
		if leg.stop != stopNone {
			return pos, leg.stop, aligns, leg.blocked
		}
		if d, found := nearestObstruction(occ, leg.next, leg.nextDir, entryProgress(leg.nextDir), t.ID); found {
			return pos + d, stopBlocked, aligns, leg.next.ID
		}
		pos += leg.next.Length
		cur = leg.next
		curDir = leg.nextDir
		if len(route) > 0 {
			route = route[1:]
		}
	}
	return 0, stopNone, aligns, 0
}

// nearestObstruction returns the distance from fromProgress to the closest
// edge of another train's footprint in the travel direction on seg.
func nearestObstruction(occ occupancy, seg *rail.Segment, dir rail.TravelDir, fromProgress float64, self string) (float64, bool) {
	const behindEpsilon = 1e-9
	best := 0.0
	found := false
	for _, fp := range occ[seg.ID] {
		if fp.Train == self {
			continue
		}
		var d float64
		if dir == rail.Forward {
			if fp.Hi <= fromProgress+behindEpsilon {
				continue
			}
			edge := fp.Lo
			if edge < fromProgress {
				edge = fromProgress
			}
			d = (edge - fromProgress) * seg.Length
		} else {
			if fp.Lo >= fromProgress-behindEpsilon {
				continue
			}
			edge := fp.Hi
			if edge > fromProgress {
				edge = fromProgress
			}
			d = (fromProgress - edge) * seg.Length
		}
		if !found || d < best {
			best = d
			found = true
		}
	}
	return best, found
}

type legResolution struct {
	junction rail.JunctionID
	arrival  hexgrid.Direction
	exitPort hexgrid.Direction
	next     *rail.Segment
	nextDir  rail.TravelDir
	align    bool
	stop     stopKind
	blocked  rail.SegmentID
}

// resolveLeg determines what lies past the boundary the train is heading
// toward on cur: the junction, the implied arrival direction, and the next
// segment. route is the remaining route with route[0] == cur when the train
// is routed; routed trains follow it (flagging the switch alignment the
// crossing needs), free-running trains follow the switch selections.
func (w *World) resolveLeg(route []rail.SegmentID, cur *rail.Segment, curDir rail.TravelDir) legResolution {
	end := cur.B
	if curDir == rail.Reverse {
		end = cur.A
	}
	leg := legResolution{junction: end.Junction, arrival: end.Port}

	jn, err := w.graph.Junction(leg.junction)
	if err != nil {
		leg.stop = stopBlocked
		return leg
	}

	routed := len(route) > 0 && route[0] == cur.ID
	if routed {
		if len(route) == 1 {
			// Route ends at this boundary: the destination junction.
			leg.stop = stopDestination
			return leg
		}
		nextID := route[1]
		exitPort := hexgrid.DirectionCount
		for d := hexgrid.Direction(0); d < hexgrid.DirectionCount; d++ {
			if d != leg.arrival && jn.Ports[d] == nextID {
				exitPort = d
				break
			}
		}
		if exitPort == hexgrid.DirectionCount {
			// The routed segment no longer hangs off this junction.
			leg.stop = stopBlocked
			leg.blocked = nextID
			return leg
		}
		leg.exitPort = exitPort
		sel, err := w.graph.SelectedExit(leg.junction, leg.arrival)
		if err != nil {
			leg.stop = stopBlocked
			return leg
		}
		leg.align = sel != exitPort
	} else {
		sel, err := w.graph.SelectedExit(leg.junction, leg.arrival)
		if err != nil {
			// Dead end or unroutable junction.
			leg.stop = stopBlocked
			return leg
		}
		leg.exitPort = sel
	}

	next, err := w.graph.Segment(jn.Ports[leg.exitPort])
	if err != nil {
		leg.stop = stopBlocked
		return leg
	}
	leg.next = next
	entry := rail.Endpoint{Junction: leg.junction, Port: leg.exitPort}
	if next.A == entry {
		leg.nextDir = rail.Forward
	} else {
		leg.nextDir = rail.Reverse
	}
	return leg
}

// integrate advances the plan by dist world units, converting progress frames
// across segment boundaries and popping consumed route segments. Callers
// clamp dist so a crossing only ever happens through a passable boundary.
func (w *World) integrate(p *plan, seg *rail.Segment, dist float64) {
	cur := seg
	curDir := p.dir
	progress := p.progress
	route := p.route

	for hops := 0; dist > 1e-12 && hops < maxWalkSegments; hops++ {
		d2e := distToEnd(cur, curDir, progress)
		if dist < d2e {
			if curDir == rail.Forward {
				progress += dist / cur.Length
			} else {
				progress -= dist / cur.Length
			}
			dist = 0
			break
		}
		if dist <= d2e+1e-12 {
			// Landing exactly on the boundary does not cross it; stops at a
			// blocked junction or the destination pin here.
			progress = boundaryProgress(curDir)
			dist = 0
			break
		}
		dist -= d2e
		leg := w.resolveLeg(route, cur, curDir)
		if leg.next == nil {
			// Clamped travel should stop short of an impassable boundary;
			// pin to it if float error carried us here.
			progress = boundaryProgress(curDir)
			dist = 0
			break
		}
		p.prevSeg = cur.ID
		p.prevDir = curDir
		if len(route) > 0 && route[0] == cur.ID {
			route = route[1:]
		}
		cur = leg.next
		curDir = leg.nextDir
		progress = entryProgress(curDir)
	}

	p.segment = cur.ID
	p.dir = curDir
	p.progress = clampProgress(progress)
	p.route = route
}

// runCollisionDiagnostics submits the committed footprints to the collision
// oracle. A confirmed overlap is an anomaly the braking contract should have
// prevented; both trains are marked crashed and the pair is logged.
func (w *World) runCollisionDiagnostics() {
	if w.oracle == nil {
		return
	}
	pairs := w.oracle.Overlaps(w.Footprints())
	for _, pair := range pairs {
		a, okA := w.trains[pair.TrainA]
		b, okB := w.trains[pair.TrainB]
		if !okA || !okB {
			continue
		}
		// A wreck already on record keeps overlapping until a dispatched
		// train clears the site; re-crashing the pair would make that
		// recovery impossible.
		if a.State == TrainCrashed || b.State == TrainCrashed {
			continue
		}
		a.State = TrainCrashed
		a.Speed = 0
		a.Throttle = 0
		b.State = TrainCrashed
		b.Speed = 0
		b.Throttle = 0
		if w.metrics != nil {
			w.metrics.Add("sim_collisions_total", 1)
		}
		logsim.TrainCrashed(context.Background(), w.publisher, w.tick,
			logging.EntityRef{ID: a.ID, Kind: logging.EntityKindTrain},
			[]logging.EntityRef{{ID: b.ID, Kind: logging.EntityKindTrain}},
			logsim.TrainCrashedPayload{Segment: uint64(pair.Segment)}, nil)
	}
}

func distToEnd(seg *rail.Segment, dir rail.TravelDir, progress float64) float64 {
	if dir == rail.Forward {
		return (1 - progress) * seg.Length
	}
	return progress * seg.Length
}

func boundaryProgress(dir rail.TravelDir) float64 {
	if dir == rail.Forward {
		return 1
	}
	return 0
}

func entryProgress(dir rail.TravelDir) float64 {
	if dir == rail.Forward {
		return 0
	}
	return 1
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
