// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	// RoomIDLen and JoinCodeLen are fixed by the wire contract; clients
	// distinguish ids from codes by length and alphabet.
	RoomIDLen   = 16
	JoinCodeLen = 12

	// MaxParticipants is the hard room capacity.
	MaxParticipants = 4
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

type (
	RoomID   string
	JoinCode string
)

// Room is one ephemeral voice session. Participants is ordered by join time.
type Room struct {
	ID           RoomID         `json:"id"`
	JoinCode     JoinCode       `json:"joinCode"`
	Participants []*Participant `json:"participants"`
	CreatedAt    time.Time      `json:"createdAt"`
}
