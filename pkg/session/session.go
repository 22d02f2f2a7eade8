package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ambientworld/pkg/fabric"
	"github.com/opd-ai/ambientworld/pkg/worldengine"
	"github.com/opd-ai/ambientworld/pkg/worldstate"
)

// upgrader accepts WebSocket upgrades from any origin — this core has no
// multi-tenant isolation to protect (spec.md §1 non-goals), matching the
// teacher's federation hub upgrader.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session manages one accepted WebSocket connection: it pushes periodic
// snapshots and translates inbound messages into world engine events.
type Session struct {
	ID     string
	conn   *websocket.Conn
	writeMu sync.Mutex
	queue  *fabric.EventQueue
	cell   *fabric.SnapshotCell
	table  *worldstate.Table
	tickHz float64
	pushHz float64
	log    *logrus.Entry
}

// Config configures a Session's construction.
type Config struct {
	Queue  *fabric.EventQueue
	Cell   *fabric.SnapshotCell
	Table  *worldstate.Table
	TickHz float64
	Log    *logrus.Logger
}

// Accept upgrades an HTTP request to a WebSocket connection and returns a
// Session that has not yet started its read/push loops.
func Accept(w http.ResponseWriter, r *http.Request, id string, cfg Config) (*Session, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	// Snapshot push rate must be >= 5Hz and <= the simulation tick rate.
	pushHz := cfg.TickHz
	if pushHz < 5 {
		pushHz = 5
	}
	return &Session{
		ID:     id,
		conn:   conn,
		queue:  cfg.Queue,
		cell:   cfg.Cell,
		table:  cfg.Table,
		tickHz: cfg.TickHz,
		pushHz: pushHz,
		log:    log.WithField("session_id", id),
	}, nil
}

// Run sends the hello message, starts the periodic snapshot pusher, and
// blocks reading inbound messages until the connection closes or ctx is
// canceled.
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()

	if err := s.sendJSON(TypeHello, HelloPayload{
		SessionID:     s.ID,
		SchemaVersion: SchemaVersion,
		TickRateHz:    s.tickHz,
	}); err != nil {
		s.log.WithError(err).Debug("session: hello send failed")
		return
	}

	pushCtx, cancelPush := context.WithCancel(ctx)
	defer cancelPush()
	go s.pushSnapshots(pushCtx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.WithError(err).Debug("session: transport closed")
			return
		}
		s.handleMessage(raw)
	}
}

func (s *Session) pushSnapshots(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / s.pushHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.cell.Load()
			if err := s.sendJSON(TypeSnapshot, snapshotPayload(snap)); err != nil {
				s.log.WithError(err).Debug("session: snapshot push failed")
				return
			}
		}
	}
}

func (s *Session) handleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.sendError(CodeValidationError, "malformed envelope", "")
		return
	}
	if env.Version != SchemaVersion {
		s.sendError(CodeVersionMismatch, "unsupported envelope version "+env.Version, "")
		return
	}

	switch env.Type {
	case TypePerform:
		s.handlePerform(env.Payload)
	case TypeSetScene:
		s.handleSetScene(env.Payload)
	case TypePing:
		s.handlePing(env.Payload)
	default:
		s.sendError(CodeInvalidAction, "unknown message type "+env.Type, "")
	}
}

func (s *Session) handlePerform(payload json.RawMessage) {
	var p PerformPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(CodeValidationError, "malformed perform payload", "")
		return
	}
	ev, action, intensity, verr := translatePerform(p.Action, s.table)
	if verr != nil {
		s.sendError(verr.code, verr.message, p.RequestID)
		return
	}
	if err := s.queue.TrySend(ev); err != nil {
		s.sendError(CodeRateLimited, "event queue full", p.RequestID)
		return
	}
	s.sendJSON(TypeEventAck, EventAckPayload{RequestID: p.RequestID, Action: action, Intensity: intensity})
}

func (s *Session) handleSetScene(payload json.RawMessage) {
	var p SetScenePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(CodeValidationError, "malformed set_scene payload", "")
		return
	}
	name, verr := validateSceneName(p.SceneName, s.table)
	if verr != nil {
		s.sendError(verr.code, verr.message, p.RequestID)
		return
	}
	if err := s.queue.TrySend(worldengine.PerformSceneEvent(name)); err != nil {
		s.sendError(CodeRateLimited, "event queue full", p.RequestID)
		return
	}
	s.sendJSON(TypeEventAck, EventAckPayload{RequestID: p.RequestID, Action: "Scene"})
}

func (s *Session) handlePing(payload json.RawMessage) {
	var p PingPayload
	_ = json.Unmarshal(payload, &p)
	s.sendJSON(TypePong, p)
}

func (s *Session) sendError(code, message, requestID string) {
	_ = s.sendJSON(TypeError, ErrorPayload{Code: code, Message: message, RequestID: requestID})
}

// sendJSON serializes and writes one envelope. gorilla/websocket permits at
// most one concurrent writer per connection; the push loop and the read
// loop's reply path both call this, so writes are serialized here the same
// way the teacher's federation hub serializes its announce broadcasts.
func (s *Session) sendJSON(msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{Version: SchemaVersion, Type: msgType, Payload: body}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

func snapshotPayload(snap worldengine.Snapshot) SnapshotPayload {
	params := worldengine.Project(snap)
	w := snap.World
	return SnapshotPayload{
		World: WorldStateJSON{
			Density:        w.Density,
			Rhythm:         w.Rhythm,
			Tension:        w.Tension,
			Energy:         w.Energy,
			Warmth:         w.Warmth,
			SparkleImpulse: w.SparkleImpulse,
		},
		Audio: AudioParamsJSON{
			MasterGain:     params.MasterGain,
			BaseFreqHz:     params.BaseFreqHz,
			DetuneRatio:    params.DetuneRatio,
			Brightness:     params.Brightness,
			Motion:         params.Motion,
			Texture:        params.Texture,
			SparkleImpulse: params.SparkleImpulse,
		},
	}
}
