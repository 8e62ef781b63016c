package net

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"tracks-and-trains/server"
	"tracks-and-trains/server/internal/rail"
	"tracks-and-trains/server/internal/sim"
)

type HTTPHandlerConfig struct {
	// Events, when set, serves the SSE stream at /events.
	Events nethttp.Handler
	// ClientDir, when set, serves static client files at /.
	ClientDir string
	Logger    *log.Logger
}

// clientMessage is the envelope for every websocket frame from a client. The
// message type selects which command payload, if any, is read.
type clientMessage struct {
	Ver           int                       `json:"ver,omitempty"`
	Type          string                    `json:"type"`
	Seq           *uint64                   `json:"seq,omitempty"`
	SentAt        int64                     `json:"sentAt,omitempty"`
	PlaceSegment  *sim.PlaceSegmentCommand  `json:"placeSegment,omitempty"`
	RemoveSegment *sim.RemoveSegmentCommand `json:"removeSegment,omitempty"`
	SetSwitch     *sim.SetSwitchCommand     `json:"setSwitch,omitempty"`
	SpawnTrain    *sim.SpawnTrainCommand    `json:"spawnTrain,omitempty"`
	DespawnTrain  *sim.DespawnTrainCommand  `json:"despawnTrain,omitempty"`
	Dispatch      *sim.DispatchCommand      `json:"dispatch,omitempty"`
	SetThrottle   *sim.SetThrottleCommand   `json:"setThrottle,omitempty"`
	Reverse       *sim.ReverseCommand       `json:"reverse,omitempty"`
}

type commandAckMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick,omitempty"`
}

type commandRejectMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

type heartbeatMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// commandTypes maps websocket message types onto simulation commands.
var commandTypes = map[string]sim.CommandType{
	"placeSegment":  sim.CommandPlaceSegment,
	"removeSegment": sim.CommandRemoveSegment,
	"setSwitch":     sim.CommandSetSwitch,
	"spawnTrain":    sim.CommandSpawnTrain,
	"despawnTrain":  sim.CommandDespawnTrain,
	"dispatch":      sim.CommandDispatch,
	"setThrottle":   sim.CommandSetThrottle,
	"reverse":       sim.CommandReverse,
}

func commandFromMessage(msg clientMessage) (sim.Command, bool) {
	cmdType, ok := commandTypes[msg.Type]
	if !ok {
		return sim.Command{}, false
	}
	return sim.Command{
		Type:          cmdType,
		PlaceSegment:  msg.PlaceSegment,
		RemoveSegment: msg.RemoveSegment,
		SetSwitch:     msg.SetSwitch,
		SpawnTrain:    msg.SpawnTrain,
		DespawnTrain:  msg.DespawnTrain,
		Dispatch:      msg.Dispatch,
		SetThrottle:   msg.SetThrottle,
		Reverse:       msg.Reverse,
	}, true
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Tick       uint64 `json:"tick"`
			Clients    any    `json:"clients"`
			TickRate   int    `json:"tickRate"`
			Heartbeat  int64  `json:"heartbeatMillis"`
			Telemetry  any    `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Tick:       hub.Tick(),
			Clients:    hub.DiagnosticsSnapshot(),
			TickRate:   hub.TickRate(),
			Heartbeat:  server.HeartbeatInterval().Milliseconds(),
			Telemetry:  hub.TelemetrySnapshot(),
		}
		writeJSONResponse(w, payload)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSONResponse(w, hub.Join())
	})

	mux.HandleFunc("/snapshot", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodGet:
			writeJSONResponse(w, hub.Snapshot())
		case nethttp.MethodPost:
			defer r.Body.Close()
			var snap sim.Snapshot
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&snap); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
			if err := hub.RestoreSnapshot(snap); err != nil {
				status := nethttp.StatusBadRequest
				if !errors.Is(err, rail.ErrInconsistentSnapshot) {
					status = nethttp.StatusUnprocessableEntity
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(struct {
					Reason string `json:"reason"`
					Detail string `json:"detail"`
				}{Reason: rail.Kind(err), Detail: err.Error()})
				return
			}
			writeJSONResponse(w, struct {
				Status string `json:"status"`
				Tick   uint64 `json:"tick"`
			}{Status: "ok", Tick: hub.Tick()})
		default:
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/snapshot/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		data, err := sim.SnapshotSchema()
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.Events != nil {
		mux.Handle("/events", cfg.Events)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		clientID := r.URL.Query().Get("id")
		if clientID == "" {
			httpError(w, "missing id", nethttp.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed for %s: %v", clientID, err)
			return
		}

		sub, ok := hub.Subscribe(clientID, conn)
		if !ok {
			message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown client")
			conn.WriteMessage(websocket.CloseMessage, message)
			conn.Close()
			return
		}

		initial, err := hub.MarshalState()
		if err != nil {
			logger.Printf("failed to marshal initial state for %s: %v", clientID, err)
			hub.Disconnect(clientID, "initial state failed")
			return
		}
		if err := sub.WriteMessage(websocket.TextMessage, initial); err != nil {
			hub.Disconnect(clientID, "write failed")
			return
		}

		serveClient(hub, logger, clientID, conn, sub)
	})

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

// serveClient runs the read loop for one websocket connection until it drops.
func serveClient(hub *server.Hub, logger *log.Logger, clientID string, conn *websocket.Conn, sub *server.Subscriber) {
	writeJSON := func(payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("failed to marshal response for %s: %v", clientID, err)
			return true
		}
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			hub.Disconnect(clientID, "write failed")
			return false
		}
		return true
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			hub.Disconnect(clientID, "read failed")
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Printf("discarding malformed message from %s: %v", clientID, err)
			continue
		}

		seq := uint64(0)
		if msg.Seq != nil && *msg.Seq > 0 {
			seq = *msg.Seq
		}

		if msg.Type == "heartbeat" {
			now := time.Now()
			rtt, ok := hub.UpdateHeartbeat(clientID, now, msg.SentAt)
			if !ok {
				continue
			}
			ack := heartbeatMessage{
				Ver:        server.ProtocolVersion,
				Type:       "heartbeat",
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			}
			if !writeJSON(ack) {
				return
			}
			continue
		}

		cmd, known := commandFromMessage(msg)
		if !known {
			logger.Printf("unknown message type %q from %s", msg.Type, clientID)
			continue
		}

		// Retransmits of an already acknowledged command get a fresh ack and
		// are otherwise dropped.
		if seq > 0 {
			if last := sub.LastCommandSeq(); last > 0 && seq <= last {
				if !writeJSON(commandAckMessage{Ver: server.ProtocolVersion, Type: "commandAck", Seq: seq}) {
					return
				}
				continue
			}
		}

		staged, ok, reason := hub.EnqueueCommand(clientID, cmd)
		if seq > 0 {
			if ok {
				ack := commandAckMessage{Ver: server.ProtocolVersion, Type: "commandAck", Seq: seq, Tick: staged.OriginTick}
				if !writeJSON(ack) {
					return
				}
				sub.StoreLastCommandSeq(seq)
			} else {
				reject := commandRejectMessage{
					Ver:    server.ProtocolVersion,
					Type:   "commandReject",
					Seq:    seq,
					Reason: reason,
					Retry:  reason == server.CommandRejectQueueLimit,
				}
				if !writeJSON(reject) {
					return
				}
			}
		}
		if !ok && reason == server.CommandRejectUnknownClient {
			logger.Printf("command ignored for unknown client %s", clientID)
		}
	}
}

func writeJSONResponse(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
