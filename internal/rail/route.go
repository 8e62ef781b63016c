package rail

import (
	"container/heap"
	"fmt"
)

// TravelDir is the direction of travel relative to a segment's canonical
// endpoint order: +1 runs A to B, -1 runs B to A.
type TravelDir int

const (
	// Forward travels from endpoint A toward endpoint B.
	Forward TravelDir = 1
	// Reverse travels from endpoint B toward endpoint A.
	Reverse TravelDir = -1
)

// Flip returns the opposite travel direction.
func (d TravelDir) Flip() TravelDir { return -d }

// routeState is a Dijkstra node: a junction together with the segment the
// walk arrived through. Tracking the arrival segment keeps the search from
// bouncing straight back the way it came, which no switch can route.
type routeState struct {
	junction JunctionID
	via      SegmentID
}

// FindRoute computes the minimum-total-length sequence of segments from a
// train's current position to the destination junction. The first element is
// always the start segment; the search begins at the junction the train is
// heading toward, so routes never require reversing on the spot.
//
// The route is advisory: it ignores occupancy and switch selections, which
// the motion integrator resolves at traversal time. Ties in total length
// break toward the lowest segment id so dispatch stays reproducible.
func (g *Graph) FindRoute(start SegmentID, dir TravelDir, dest JunctionID) ([]SegmentID, error) {
	startSeg, err := g.Segment(start)
	if err != nil {
		return nil, err
	}
	if _, err := g.Junction(dest); err != nil {
		return nil, err
	}

	entry := startSeg.B.Junction
	if dir == Reverse {
		entry = startSeg.A.Junction
	}
	origin := routeState{junction: entry, via: start}
	if entry == dest {
		return []SegmentID{start}, nil
	}

	dist := map[routeState]float64{origin: 0}
	prev := make(map[routeState]routeState)
	settled := make(map[routeState]bool)

	pq := &routeQueue{}
	heap.Init(pq)
	heap.Push(pq, routeItem{state: origin, dist: 0})

	goal := routeState{}
	found := false
	for pq.Len() > 0 {
		item := heap.Pop(pq).(routeItem)
		if settled[item.state] {
			continue
		}
		settled[item.state] = true
		if item.state.junction == dest {
			goal = item.state
			found = true
			break
		}
		links, err := g.NeighborsOf(item.state.junction)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if link.Segment == item.state.via {
				continue
			}
			seg := g.segments[link.Segment]
			next := routeState{junction: seg.Other(item.state.junction).Junction, via: link.Segment}
			if settled[next] {
				continue
			}
			candidate := item.dist + seg.Length
			current, seen := dist[next]
			if !seen || candidate < current {
				dist[next] = candidate
				prev[next] = item.state
				heap.Push(pq, routeItem{state: next, dist: candidate})
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("no path from segment %d to junction %d: %w", start, dest, ErrUnreachable)
	}

	var tail []SegmentID
	for at := goal; at != origin; at = prev[at] {
		tail = append(tail, at.via)
	}
	route := make([]SegmentID, 0, len(tail)+1)
	route = append(route, start)
	for i := len(tail) - 1; i >= 0; i-- {
		route = append(route, tail[i])
	}
	return route, nil
}

// RouteLength sums the lengths of the given segments.
func (g *Graph) RouteLength(route []SegmentID) (float64, error) {
	total := 0.0
	for _, id := range route {
		seg, err := g.Segment(id)
		if err != nil {
			return 0, err
		}
		total += seg.Length
	}
	return total, nil
}

type routeItem struct {
	state routeState
	dist  float64
}

type routeQueue []routeItem

func (q routeQueue) Len() int { return len(q) }

func (q routeQueue) Less(i, k int) bool {
	if q[i].dist != q[k].dist {
		return q[i].dist < q[k].dist
	}
	if q[i].state.via != q[k].state.via {
		return q[i].state.via < q[k].state.via
	}
	return q[i].state.junction < q[k].state.junction
}

func (q routeQueue) Swap(i, k int) { q[i], q[k] = q[k], q[i] }

func (q *routeQueue) Push(x any) { *q = append(*q, x.(routeItem)) }

func (q *routeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
