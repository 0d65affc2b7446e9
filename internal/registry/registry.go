// Package registry is the in-memory authority for room existence, join
// codes and participant membership.
package registry

import (
	"github.com/huddlehq/huddle/internal/domain"
)

// Registry is the room-management API the gateway and the HTTP surface are
// written against. The in-memory implementation below is one interchangeable
// implementation; a persistent store would implement the same interface.
type Registry interface {
	// CreateRoom allocates a fresh empty room with unique id and join code.
	CreateRoom() (domain.Room, error)
	// LookupByCode resolves a join code. Returns domain.ErrRoomNotFound if
	// no live room has that code.
	LookupByCode(code domain.JoinCode) (domain.Room, error)
	// LookupByID resolves a room id. Returns domain.ErrRoomNotFound if the
	// room does not exist.
	LookupByID(id domain.RoomID) (domain.Room, error)
	// AddParticipant appends p to the room's roster. Returns
	// domain.ErrRoomNotFound or domain.ErrRoomFull.
	AddParticipant(id domain.RoomID, p *domain.Participant) error
	// RemoveParticipant removes the matching participant and deletes the
	// room if it becomes empty. Idempotent: a missing room or participant
	// is not an error, because disconnect handling can race an explicit
	// leave.
	RemoveParticipant(id domain.RoomID, cid domain.ConnectionID)
	// SetMuted updates the mute flag on the roster entry. Muting clears
	// the speaking flag. Reports whether the participant was found.
	SetMuted(id domain.RoomID, cid domain.ConnectionID, muted bool) bool
	// SetSpeaking updates the speaking flag on the roster entry; forced to
	// false while the participant is muted. Reports whether the
	// participant was found.
	SetSpeaking(id domain.RoomID, cid domain.ConnectionID, speaking bool) bool
	// Participants returns a snapshot copy of the roster, join order
	// preserved. Empty for unknown rooms.
	Participants(id domain.RoomID) []domain.Participant
}
