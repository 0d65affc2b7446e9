// Package signal implements the real-time signaling channel: one WebSocket
// per client, join/presence events, and verbatim relay of peer negotiation
// messages.
package signal

import (
	"encoding/json"

	"github.com/huddlehq/huddle/internal/domain"
)

type Type string

const (
	TypeJoinRoom     Type = "join-room"
	TypeRoomJoined   Type = "room-joined"
	TypeUserJoined   Type = "user-joined"
	TypeUserLeft     Type = "user-left"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeError        Type = "error"
	// Presence updates beyond the join/leave pair.
	TypeMute         Type = "mute"
	TypeUserMuted    Type = "user-muted"
	TypeSpeaking     Type = "speaking"
	TypeUserSpeaking Type = "user-speaking"
)

// Envelope is the wire frame for every signaling message. Payload stays
// raw: the gateway never interprets negotiation contents, it only stamps
// From and routes by To.
type Envelope struct {
	Type    Type            `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID         string `json:"roomId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// RoomJoinedPayload tells the joiner its own connection id and the full
// roster, itself included.
type RoomJoinedPayload struct {
	ConnectionID string               `json:"connectionId"`
	Participants []domain.Participant `json:"participants"`
}

type UserJoinedPayload struct {
	ConnectionID   string `json:"connectionId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type UserLeftPayload struct {
	ConnectionID string `json:"connectionId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type MutePayload struct {
	Muted bool `json:"muted"`
}

type SpeakingPayload struct {
	Speaking bool `json:"speaking"`
}

// PresencePayload carries the resulting roster flags of one participant
// after a mute or speaking transition.
type PresencePayload struct {
	ConnectionID string `json:"connectionId"`
	Muted        bool   `json:"isMuted"`
	Speaking     bool   `json:"isSpeaking"`
}

const (
	MsgRoomNotFound = "Room not found"
	MsgRoomFull     = "Room is full (max 4 participants)"
)
