// Package client is the headless room participant: it talks to the
// gateway over one WebSocket, runs the peer mesh, and owns the local
// audio pipeline.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/audio"
	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/internal/mesh"
	"github.com/huddlehq/huddle/internal/signal"
)

const joinTimeout = 10 * time.Second

// Client is one participant's coordination runtime.
type Client struct {
	ServerURL string
	Username  string
	AvatarURL string
	STUN      []string

	// Optional observers.
	OnRoster     func(participants []domain.Participant)
	OnUserJoined func(connectionID, username string)
	OnUserLeft   func(connectionID string)
	OnPresence   func(p signal.PresencePayload)
	OnServerErr  func(message string)

	conn    *websocket.Conn
	writeMu sync.Mutex

	id       string
	coord    *mesh.Coordinator
	tracks   *audio.TrackWriter
	detector *audio.Detector
	muted    bool

	done chan struct{}
}

func New(serverURL, username, avatarURL string) *Client {
	return &Client{
		ServerURL: serverURL,
		Username:  username,
		AvatarURL: avatarURL,
		done:      make(chan struct{}),
	}
}

// ID is the connection id the gateway assigned, empty before Join.
func (c *Client) ID() string { return c.id }

// Done is closed when the signaling channel ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Join opens the signaling channel, joins the room and starts the mesh.
// It returns once the gateway confirms the join (or rejects it).
func (c *Client) Join(ctx context.Context, roomID string) error {
	wsURL := strings.Replace(c.ServerURL, "http", "ws", 1) + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	c.conn = conn

	tracks, err := audio.NewTrackWriter(roomID)
	if err != nil {
		conn.Close()
		return err
	}
	c.tracks = tracks

	if err := c.sendEnvelope("", signal.TypeJoinRoom, signal.JoinRoomPayload{
		RoomID:         roomID,
		Username:       c.Username,
		ProfilePicture: c.AvatarURL,
	}); err != nil {
		conn.Close()
		return err
	}

	joined, err := c.awaitJoin()
	if err != nil {
		conn.Close()
		return err
	}

	c.id = joined.ConnectionID
	c.coord = mesh.NewCoordinator(c.id, c.linkFactory, c.sendEnvelope)
	log.Info().Str("module", "client").Str("cid", c.id).Str("room", roomID).Msg("joined")

	if c.OnRoster != nil {
		c.OnRoster(joined.Participants)
	}
	roster := make([]string, 0, len(joined.Participants))
	for _, p := range joined.Participants {
		roster = append(roster, string(p.ConnectionID))
	}
	c.coord.SetRoster(roster)

	go c.readLoop()
	return nil
}

// StartAudio acquires the capture source and runs the activity detector.
// Speaking transitions go to the room as presence updates; PCM frames go
// to the outgoing Opus track while unmuted.
func (c *Client) StartAudio(ctx context.Context, acquire audio.AcquireFunc, cfg audio.Config) error {
	c.detector = audio.NewDetector(c.teeToTrack(acquire), cfg, func(speaking bool) {
		if err := c.sendEnvelope("", signal.TypeSpeaking, signal.SpeakingPayload{Speaking: speaking}); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("send speaking")
		}
	})
	return c.detector.Start(ctx)
}

// SetMuted updates the local flags and informs the room. Muting silences
// both the speaking signal and the outgoing track.
func (c *Client) SetMuted(muted bool) error {
	c.writeMu.Lock()
	c.muted = muted
	c.writeMu.Unlock()
	if c.detector != nil {
		c.detector.SetMuted(muted)
	}
	return c.sendEnvelope("", signal.TypeMute, signal.MutePayload{Muted: muted})
}

// Leave releases the audio pipeline, tears down the mesh and closes the
// signaling channel. The gateway handles the rest exactly as it would an
// abrupt disconnect.
func (c *Client) Leave() {
	if c.detector != nil {
		c.detector.Stop()
	}
	if c.coord != nil {
		c.coord.Close()
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	}
}

// awaitJoin reads until the gateway answers the join with room-joined or
// an error event.
func (c *Client) awaitJoin() (*signal.RoomJoinedPayload, error) {
	deadline := time.Now().Add(joinTimeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		switch env.Type {
		case signal.TypeRoomJoined:
			var p signal.RoomJoinedPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, err
			}
			return &p, nil
		case signal.TypeError:
			var p signal.ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			if p.Message == signal.MsgRoomFull {
				return nil, domain.ErrRoomFull
			}
			if p.Message == signal.MsgRoomNotFound {
				return nil, domain.ErrRoomNotFound
			}
			return nil, fmt.Errorf("join rejected: %s", p.Message)
		default:
			// Presence noise from a racing join; ignore until our answer.
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "client").Msg("signaling channel closed")
			return
		}
		c.handleEvent(data)
	}
}

func (c *Client) handleEvent(data []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad envelope")
		return
	}

	switch env.Type {
	case signal.TypeUserJoined:
		var p signal.UserJoinedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.coord.HandleUserJoined(p.ConnectionID)
		if c.OnUserJoined != nil {
			c.OnUserJoined(p.ConnectionID, p.Username)
		}
	case signal.TypeUserLeft:
		var p signal.UserLeftPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.coord.HandleUserLeft(p.ConnectionID)
		if c.OnUserLeft != nil {
			c.OnUserLeft(p.ConnectionID)
		}
	case signal.TypeOffer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &sdp); err != nil {
			return
		}
		c.coord.HandleOffer(env.From, sdp)
	case signal.TypeAnswer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &sdp); err != nil {
			return
		}
		c.coord.HandleAnswer(env.From, sdp)
	case signal.TypeICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &cand); err != nil {
			return
		}
		c.coord.HandleCandidate(env.From, cand)
	case signal.TypeUserMuted, signal.TypeUserSpeaking:
		var p signal.PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if c.OnPresence != nil {
			c.OnPresence(p)
		}
	case signal.TypeError:
		var p signal.ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		log.Warn().Str("module", "client").Str("message", p.Message).Msg("server error event")
		if c.OnServerErr != nil {
			c.OnServerErr(p.Message)
		}
	default:
		log.Warn().Str("module", "client").Str("type", string(env.Type)).Msg("unknown event")
	}
}

func (c *Client) sendEnvelope(to string, typ signal.Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := signal.Envelope{Type: typ, To: to, Payload: raw}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// linkFactory builds one mesh edge with the shared local track attached
// and remote audio drained.
func (c *Client) linkFactory(peer string) (mesh.Link, error) {
	return mesh.NewPeerLink(
		mesh.WebRTCConfig(c.STUN),
		peer,
		c.tracks.Track(),
		func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			go drainTrack(track)
		},
	)
}

// teeToTrack wraps the capture source so every frame the detector samples
// is also encoded onto the outgoing track, unless muted.
func (c *Client) teeToTrack(acquire audio.AcquireFunc) audio.AcquireFunc {
	return func() (audio.Source, error) {
		src, err := acquire()
		if err != nil {
			return nil, err
		}
		return &teeSource{src: src, c: c}, nil
	}
}

type teeSource struct {
	src audio.Source
	c   *Client
}

func (t *teeSource) ReadFrame() ([]int16, error) {
	frame, err := t.src.ReadFrame()
	if err != nil {
		return nil, err
	}
	t.c.writeMu.Lock()
	muted := t.c.muted
	t.c.writeMu.Unlock()
	if !muted {
		if err := t.c.tracks.WriteFrame(frame); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("track write")
		}
	}
	return frame, nil
}

func (t *teeSource) Close() error { return t.src.Close() }

// Remote audio is decoded and played by a real frontend; the headless
// client just keeps the RTP flowing.
func drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
