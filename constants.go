package server

import "time"

// ProtocolVersion is bumped whenever the websocket message shape changes.
const ProtocolVersion = 1

const (
	// writeWait bounds a single websocket write before the subscriber is
	// considered dead.
	writeWait = 10 * time.Second
	// heartbeatInterval is how often clients are expected to ping.
	heartbeatInterval = 5 * time.Second
)

// Stable reject reasons for commands that never reach the simulation.
const (
	CommandRejectUnknownClient  = "unknownClient"
	CommandRejectQueueLimit     = "queueLimit"
	CommandRejectInvalidPayload = "invalidPayload"
)

// HeartbeatInterval reports the expected client ping cadence.
func HeartbeatInterval() time.Duration { return heartbeatInterval }
