package server

import (
	"tracks-and-trains/server/internal/rail"
	"tracks-and-trains/server/internal/sim"
)

// JoinResponse is returned from /join and carries everything a client needs
// to render before the first broadcast arrives.
type JoinResponse struct {
	Ver        int                `json:"ver"`
	ID         string             `json:"id"`
	TickRate   int                `json:"tickRate"`
	Config     sim.Config         `json:"config"`
	Track      rail.GraphSnapshot `json:"track"`
	Trains     []sim.Train        `json:"trains"`
	ServerTime int64              `json:"serverTime"`
}

// stateMessage is the full-state broadcast written to every subscriber each
// tick. Clients treat it as authoritative and replace local state wholesale.
type stateMessage struct {
	Ver        int                 `json:"ver"`
	Type       string              `json:"type"`
	Tick       uint64              `json:"tick"`
	ServerTime int64               `json:"serverTime"`
	Track      rail.GraphSnapshot  `json:"track"`
	Trains     []sim.Train         `json:"trains"`
	Results    []sim.CommandResult `json:"results,omitempty"`
}

// ClientDiagnostics describes one connected client for /diagnostics.
type ClientDiagnostics struct {
	ID            string `json:"id"`
	JoinedAt      int64  `json:"joinedAt"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rtt"`
	Subscribed    bool   `json:"subscribed"`
}
