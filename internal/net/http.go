package net

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"emberfall/server/internal/journal"
	"emberfall/server/internal/sim"
	"emberfall/server/internal/telemetry"
	"emberfall/server/logging"
)

// Gateway is the slice of the simulation loop the HTTP surface needs.
type Gateway interface {
	Enqueue(cmd sim.Command) (bool, string)
	Snapshot() sim.Snapshot
	KeyframeBySequence(seq uint64) (journal.Keyframe, bool)
	KeyframeWindow() (count int, oldest, newest uint64)
}

var _ Gateway = (*sim.Loop)(nil)

// HandlerConfig wires the HTTP surface.
type HandlerConfig struct {
	Gateway  Gateway
	Hub      *Hub
	PlayerID func() string
	Logger   telemetry.Logger
	Metrics  *logging.Metrics

	// ReadLimit caps inbound websocket frames. Zero means 4 KiB.
	ReadLimit int64
}

type httpHandler struct {
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// clientMessage is the JSON command envelope renderers send over /ws.
type clientMessage struct {
	Type string  `json:"type"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
}

// NewHTTPHandler builds the route mux for the server.
func NewHTTPHandler(cfg HandlerConfig) http.Handler {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4 << 10
	}
	h := &httpHandler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/join", h.handleJoin)
	mux.HandleFunc("/snapshot", h.handleSnapshot)
	mux.HandleFunc("/keyframe", h.handleKeyframe)
	mux.HandleFunc("/diagnostics", h.handleDiagnostics)
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// joinResponse is the renderer handshake payload: the controllable actor id
// plus a full snapshot to seed the client's view before patches stream in.
type joinResponse struct {
	ID       string       `json:"id"`
	Snapshot sim.Snapshot `json:"snapshot"`
}

func (h *httpHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.cfg.Gateway == nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	playerID := ""
	if h.cfg.PlayerID != nil {
		playerID = h.cfg.PlayerID()
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.TelemetryAdd("net_join_total", 1)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(joinResponse{ID: playerID, Snapshot: h.cfg.Gateway.Snapshot()})
}

func (h *httpHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Gateway == nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cfg.Gateway.Snapshot())
}

// handleKeyframe serves a stored keyframe by sequence as raw msgpack. With no
// seq parameter it reports the retained window instead.
func (h *httpHandler) handleKeyframe(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Gateway == nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	raw := r.URL.Query().Get("seq")
	if raw == "" {
		count, oldest, newest := h.cfg.Gateway.KeyframeWindow()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":  count,
			"oldest": oldest,
			"newest": newest,
		})
		return
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid seq", http.StatusBadRequest)
		return
	}
	frame, ok := h.cfg.Gateway.KeyframeBySequence(seq)
	if !ok {
		http.Error(w, "keyframe expired", http.StatusGone)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Header().Set("X-Keyframe-Tick", strconv.FormatUint(frame.Tick, 10))
	w.Write(frame.Data)
}

func (h *httpHandler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"subscribers": h.cfg.Hub.SubscriberCount(),
	}
	if h.cfg.Metrics != nil {
		payload["telemetry"] = h.cfg.Metrics.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (h *httpHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.cfg.Logger != nil {
			h.cfg.Logger.Printf("[ws] upgrade failed: %v", err)
		}
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	id := h.cfg.Hub.Subscribe(conn)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.TelemetryAdd("net_ws_connected_total", 1)
	}
	defer func() {
		h.cfg.Hub.Unsubscribe(id)
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.TelemetryAdd("net_ws_disconnected_total", 1)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(data)
	}
}

func (h *httpHandler) dispatch(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.TelemetryAdd("net_ws_malformed_total", 1)
		}
		return
	}
	playerID := ""
	if h.cfg.PlayerID != nil {
		playerID = h.cfg.PlayerID()
	}
	if playerID == "" || h.cfg.Gateway == nil {
		return
	}

	var cmd sim.Command
	switch msg.Type {
	case "move":
		cmd = sim.Command{
			Type:     sim.CommandMove,
			ActorID:  playerID,
			IssuedAt: time.Now(),
			Move:     &sim.MoveCommand{DX: msg.DX, DY: msg.DY},
		}
	case "fire":
		cmd = sim.Command{
			Type:     sim.CommandFire,
			ActorID:  playerID,
			IssuedAt: time.Now(),
			Fire:     &sim.FireCommand{DirX: msg.DX, DirY: msg.DY},
		}
	default:
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.TelemetryAdd("net_ws_unknown_command_total", 1)
		}
		return
	}

	if ok, reason := h.cfg.Gateway.Enqueue(cmd); !ok {
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.TelemetryAdd("net_command_rejected_total", 1)
		}
		if h.cfg.Logger != nil && reason != "" {
			h.cfg.Logger.Printf("[ws] command rejected: %s", reason)
		}
	}
}
