package sim

import (
	"time"

	"tracks-and-trains/server/internal/hexgrid"
	"tracks-and-trains/server/internal/rail"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandPlaceSegment  CommandType = "PlaceSegment"
	CommandRemoveSegment CommandType = "RemoveSegment"
	CommandSetSwitch     CommandType = "SetSwitch"
	CommandSpawnTrain    CommandType = "SpawnTrain"
	CommandDespawnTrain  CommandType = "DespawnTrain"
	CommandDispatch      CommandType = "Dispatch"
	CommandSetThrottle   CommandType = "SetThrottle"
	CommandReverse       CommandType = "Reverse"
	CommandHeartbeat     CommandType = "Heartbeat"
)

// PlaceSegmentCommand lays track between two hex cells. Junctions are created
// implicitly at the coordinates when absent.
type PlaceSegmentCommand struct {
	CoordA hexgrid.Coord     `json:"coordA"`
	PortA  hexgrid.Direction `json:"portA"`
	CoordB hexgrid.Coord     `json:"coordB"`
	PortB  hexgrid.Direction `json:"portB"`
}

// RemoveSegmentCommand tears up a track segment.
type RemoveSegmentCommand struct {
	Segment rail.SegmentID `json:"segment"`
}

// SetSwitchCommand selects the exit for an arrival direction at a junction.
type SetSwitchCommand struct {
	Junction rail.JunctionID   `json:"junction"`
	Arrival  hexgrid.Direction `json:"arrival"`
	Exit     hexgrid.Direction `json:"exit"`
}

// SpawnTrainCommand places a new train on a segment.
type SpawnTrainCommand struct {
	Segment  rail.SegmentID `json:"segment"`
	Progress float64        `json:"progress"`
	Dir      rail.TravelDir `json:"dir"`
}

// DespawnTrainCommand removes a train from the world.
type DespawnTrainCommand struct {
	Train string `json:"train"`
}

// DispatchCommand routes a train to a destination junction.
type DispatchCommand struct {
	Train       string          `json:"train"`
	Destination rail.JunctionID `json:"destination"`
}

// SetThrottleCommand sets the manual throttle fraction for a train.
type SetThrottleCommand struct {
	Train    string  `json:"train"`
	Throttle float64 `json:"throttle"`
}

// ReverseCommand flips a train's travel direction. Valid only at speed zero.
type ReverseCommand struct {
	Train string `json:"train"`
}

// HeartbeatCommand updates connectivity metadata for an actor.
type HeartbeatCommand struct {
	ReceivedAt time.Time     `json:"receivedAt"`
	ClientSent int64         `json:"clientSent"`
	RTT        time.Duration `json:"rtt"`
}

// Command represents an intent captured for processing at the next tick
// boundary.
type Command struct {
	OriginTick    uint64                `json:"originTick"`
	ActorID       string                `json:"actorId"`
	Type          CommandType           `json:"type"`
	IssuedAt      time.Time             `json:"issuedAt"`
	PlaceSegment  *PlaceSegmentCommand  `json:"placeSegment,omitempty"`
	RemoveSegment *RemoveSegmentCommand `json:"removeSegment,omitempty"`
	SetSwitch     *SetSwitchCommand     `json:"setSwitch,omitempty"`
	SpawnTrain    *SpawnTrainCommand    `json:"spawnTrain,omitempty"`
	DespawnTrain  *DespawnTrainCommand  `json:"despawnTrain,omitempty"`
	Dispatch      *DispatchCommand      `json:"dispatch,omitempty"`
	SetThrottle   *SetThrottleCommand   `json:"setThrottle,omitempty"`
	Reverse       *ReverseCommand       `json:"reverse,omitempty"`
	Heartbeat     *HeartbeatCommand     `json:"heartbeat,omitempty"`
}

// CommandResult reports whether a drained command applied. Every mutating
// command either fully applies or fully fails with a stable reason kind.
type CommandResult struct {
	ActorID string         `json:"actorId"`
	Type    CommandType    `json:"type"`
	Tick    uint64         `json:"tick"`
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason,omitempty"`
	Train   string         `json:"train,omitempty"`
	Segment rail.SegmentID `json:"segment,omitempty"`
}
