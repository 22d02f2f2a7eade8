package session

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/ambientworld/pkg/fabric"
	"github.com/opd-ai/ambientworld/pkg/worldengine"
	"github.com/opd-ai/ambientworld/pkg/worldstate"
)

// Server wires the WebSocket and HTTP surfaces onto an http.ServeMux. It is
// the C8 counterpart to the cooperative tasks: it never touches the world
// engine directly, only the event queue and the snapshot cache/cell.
type Server struct {
	Queue     *fabric.EventQueue
	Cell      *fabric.SnapshotCell
	Cache     *fabric.SnapshotCache
	Table     *worldstate.Table
	TickHz    float64
	Log       *logrus.Logger
	startedAt time.Time

	nextSessionID func() string
	limiter       func(r *http.Request) *rate.Limiter
}

// NewServer builds a Server. limiterPerIP, if non-nil, returns the rate
// limiter for a given request's client (keyed however the caller likes —
// typically by remote IP); nil disables HTTP-layer rate limiting.
func NewServer(queue *fabric.EventQueue, cell *fabric.SnapshotCell, cache *fabric.SnapshotCache, table *worldstate.Table, tickHz float64, log *logrus.Logger, limiterPerIP func(*http.Request) *rate.Limiter) *Server {
	seq := 0
	return &Server{
		Queue:         queue,
		Cell:          cell,
		Cache:         cache,
		Table:         table,
		TickHz:        tickHz,
		Log:           log,
		startedAt:     time.Now(),
		limiter:       limiterPerIP,
		nextSessionID: func() string { seq++; return sessionIDFromSeq(seq) },
	}
}

// Mux builds the HTTP handler tree: /ws, /health, /healthz, /state, /event.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/state", s.withRateLimit(s.handleState))
	mux.HandleFunc("/event", s.withRateLimit(s.handleEvent))
	return mux
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if lim := s.limiter(r); lim != nil && !lim.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := s.nextSessionID()
	sess, err := Accept(w, r, id, Config{Queue: s.Queue, Cell: s.Cell, Table: s.Table, TickHz: s.TickHz, Log: s.Log})
	if err != nil {
		s.Log.WithError(err).Debug("session: upgrade failed")
		return
	}
	sess.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthzResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.Cache.Load()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(WorldStateJSON{
		Density:        snap.World.Density,
		Rhythm:         snap.World.Rhythm,
		Tension:        snap.World.Tension,
		Energy:         snap.World.Energy,
		Warmth:         snap.World.Warmth,
		SparkleImpulse: snap.World.SparkleImpulse,
	})
}

// eventRequest mirrors the two accepted POST /event bodies.
type eventRequest struct {
	Type      string               `json:"type"`
	Kind      string               `json:"kind"`
	Intensity float64              `json:"intensity"`
	Action    PerformActionPayload `json:"action"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	var ev worldengine.Event
	switch req.Type {
	case "trigger":
		kind, ok := actionKindFromString(req.Kind)
		if !ok {
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}
		if req.Intensity < 0 || req.Intensity > 1 {
			http.Error(w, "intensity out of range", http.StatusBadRequest)
			return
		}
		ev = worldengine.PerformActionEvent(kind, req.Intensity)
	case "perform":
		translated, _, _, verr := translatePerform(req.Action, s.Table)
		if verr != nil {
			http.Error(w, verr.message, http.StatusBadRequest)
			return
		}
		ev = translated
	default:
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	if err := s.Queue.TrySend(ev); err != nil {
		http.Error(w, "queue full", http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func actionKindFromString(s string) (worldengine.ActionKind, bool) {
	switch s {
	case "Pulse":
		return worldengine.Pulse, true
	case "Calm":
		return worldengine.Calm, true
	case "Stir":
		return worldengine.Stir, true
	case "Tense":
		return worldengine.Tense, true
	case "Heat":
		return worldengine.Heat, true
	default:
		return 0, false
	}
}

func sessionIDFromSeq(seq int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if seq == 0 {
		return "0"
	}
	buf := make([]byte, 0, 8)
	for seq > 0 {
		buf = append([]byte{alphabet[seq%len(alphabet)]}, buf...)
		seq /= len(alphabet)
	}
	return "sess-" + string(buf)
}
