package signal

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is handled by router middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway maps each live connection to at most one room membership and
// relays events between the registry and connected peers, and between
// peers directly.
type Gateway struct {
	reg        registry.Registry
	readLimit  int64
	pingPeriod time.Duration
	joinLimit  *rateLimiter

	mu    sync.RWMutex
	conns map[domain.ConnectionID]*wsConn
	bound map[domain.ConnectionID]domain.RoomID
}

func NewGateway(reg registry.Registry, readLimit int64, pingPeriod time.Duration) *Gateway {
	return &Gateway{
		reg:        reg,
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		joinLimit:  newRateLimiter(joinAttemptLimit, joinAttemptWindow),
		conns:      make(map[domain.ConnectionID]*wsConn),
		bound:      make(map[domain.ConnectionID]domain.RoomID),
	}
}

// Handle upgrades the request and serves the connection until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cid := domain.ConnectionID(uuid.NewString())
	conn := newWSConn(cid, sock)

	g.mu.Lock()
	g.conns[cid] = conn
	g.mu.Unlock()
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("connection opened")

	go conn.writePump(g.pingPeriod)
	g.readPump(cid, conn)
}

// readPump is the single reader for one connection: inbound events from a
// given sender are processed strictly in arrival order.
func (g *Gateway) readPump(cid domain.ConnectionID, conn *wsConn) {
	defer g.disconnect(cid, conn)

	pongWait := g.pingPeriod + 6*time.Second
	conn.sock.SetReadLimit(g.readLimit)
	_ = conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump closed")
			}
			return
		}
		g.dispatch(cid, conn, data)
	}
}

func (g *Gateway) dispatch(cid domain.ConnectionID, conn *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad json")
		g.sendError(conn, "malformed message")
		return
	}

	switch env.Type {
	case TypeJoinRoom:
		g.handleJoin(cid, conn, env.Payload)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		g.relay(cid, env)
	case TypeMute:
		g.handleMute(cid, env.Payload)
	case TypeSpeaking:
		g.handleSpeaking(cid, env.Payload)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (g *Gateway) handleJoin(cid domain.ConnectionID, conn *wsConn, payload json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		g.sendError(conn, "malformed join-room payload")
		return
	}

	g.mu.RLock()
	_, already := g.bound[cid]
	g.mu.RUnlock()
	if already {
		g.sendError(conn, "already in a room")
		return
	}
	if !g.joinLimit.Allow(cid) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("join rate limited")
		g.sendError(conn, "too many join attempts")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	if _, err := g.reg.LookupByID(roomID); err != nil {
		g.sendError(conn, MsgRoomNotFound)
		return
	}

	member, err := domain.NewParticipant(cid, p.Username, p.ProfilePicture)
	if err != nil {
		g.sendError(conn, err.Error())
		return
	}
	if err := g.reg.AddParticipant(roomID, member); err != nil {
		switch err {
		case domain.ErrRoomFull:
			g.sendError(conn, MsgRoomFull)
		default:
			g.sendError(conn, MsgRoomNotFound)
		}
		return
	}

	g.mu.Lock()
	g.bound[cid] = roomID
	g.mu.Unlock()
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", p.RoomID).Str("username", p.Username).Msg("joined room")

	g.sendTo(conn, Envelope{Type: TypeRoomJoined}, RoomJoinedPayload{
		ConnectionID: string(cid),
		Participants: g.reg.Participants(roomID),
	})
	g.broadcast(roomID, cid, Envelope{Type: TypeUserJoined}, UserJoinedPayload{
		ConnectionID:   string(cid),
		Username:       member.Username,
		ProfilePicture: member.AvatarURL,
	})
}

// relay forwards a negotiation envelope to its single recipient, payload
// untouched, From stamped with the sender's connection id. Sender and
// recipient must be bound to the same room.
func (g *Gateway) relay(cid domain.ConnectionID, env Envelope) {
	to := domain.ConnectionID(env.To)

	g.mu.RLock()
	fromRoom, fromBound := g.bound[cid]
	toRoom, toBound := g.bound[to]
	target := g.conns[to]
	g.mu.RUnlock()

	if !fromBound || !toBound || fromRoom != toRoom || target == nil {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("to", env.To).Str("type", string(env.Type)).Msg("relay target unavailable")
		return
	}

	env.From = string(cid)
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}
	if err := target.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("to", env.To).Msg("relay dropped")
	}
}

func (g *Gateway) handleMute(cid domain.ConnectionID, payload json.RawMessage) {
	var p MutePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	g.updatePresence(cid, TypeUserMuted, func(roomID domain.RoomID) bool {
		return g.reg.SetMuted(roomID, cid, p.Muted)
	})
}

func (g *Gateway) handleSpeaking(cid domain.ConnectionID, payload json.RawMessage) {
	var p SpeakingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	g.updatePresence(cid, TypeUserSpeaking, func(roomID domain.RoomID) bool {
		return g.reg.SetSpeaking(roomID, cid, p.Speaking)
	})
}

// updatePresence applies a roster mutation and broadcasts the resulting
// flags so everyone agrees on the participant's state, including the
// speaking-implies-unmuted rule that the registry enforces.
func (g *Gateway) updatePresence(cid domain.ConnectionID, typ Type, apply func(domain.RoomID) bool) {
	g.mu.RLock()
	roomID, ok := g.bound[cid]
	g.mu.RUnlock()
	if !ok || !apply(roomID) {
		return
	}

	for _, p := range g.reg.Participants(roomID) {
		if p.ConnectionID != cid {
			continue
		}
		g.broadcast(roomID, cid, Envelope{Type: typ}, PresencePayload{
			ConnectionID: string(cid),
			Muted:        p.Muted,
			Speaking:     p.Speaking,
		})
		return
	}
}

// disconnect runs for every connection exit path: explicit leave (client
// closes the socket) or abrupt drop. Removal is idempotent downstream.
func (g *Gateway) disconnect(cid domain.ConnectionID, conn *wsConn) {
	g.mu.Lock()
	roomID, wasBound := g.bound[cid]
	delete(g.bound, cid)
	delete(g.conns, cid)
	g.mu.Unlock()
	g.joinLimit.Forget(cid)

	if wasBound {
		g.reg.RemoveParticipant(roomID, cid)
		g.broadcast(roomID, cid, Envelope{Type: TypeUserLeft}, UserLeftPayload{ConnectionID: string(cid)})
		log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", string(roomID)).Msg("left room")
	}
	conn.Close()
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("connection closed")
}

func (g *Gateway) broadcast(roomID domain.RoomID, except domain.ConnectionID, env Envelope, payload any) {
	data, err := marshalEnvelope(env, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for cid, room := range g.bound {
		if room != roomID || cid == except {
			continue
		}
		if conn, ok := g.conns[cid]; ok {
			if err := conn.TrySend(data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("broadcast dropped")
			}
		}
	}
}

func (g *Gateway) sendTo(conn *wsConn, env Envelope, payload any) {
	data, err := marshalEnvelope(env, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendTo marshal")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(conn.id)).Msg("send dropped")
	}
}

func (g *Gateway) sendError(conn *wsConn, msg string) {
	g.sendTo(conn, Envelope{Type: TypeError}, ErrorPayload{Message: msg})
}

func marshalEnvelope(env Envelope, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
