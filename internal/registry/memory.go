package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/domain"
)

// Memory keeps all rooms in process memory. Every mutation happens under
// one mutex, so membership changes and the delete-on-empty rule are atomic
// with respect to each other.
type Memory struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*domain.Room
	byCode map[domain.JoinCode]domain.RoomID
}

func NewMemory() *Memory {
	return &Memory{
		rooms:  make(map[domain.RoomID]*domain.Room),
		byCode: make(map[domain.JoinCode]domain.RoomID),
	}
}

func (m *Memory) CreateRoom() (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.freshRoomID()
	if err != nil {
		return domain.Room{}, err
	}
	code, err := m.freshJoinCode()
	if err != nil {
		return domain.Room{}, err
	}

	room := &domain.Room{
		ID:        id,
		JoinCode:  code,
		CreatedAt: time.Now(),
	}
	m.rooms[id] = room
	m.byCode[code] = id
	log.Info().Str("module", "registry").Str("room", string(id)).Str("code", string(code)).Msg("room created")
	return snapshot(room), nil
}

func (m *Memory) LookupByCode(code domain.JoinCode) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return snapshot(m.rooms[id]), nil
}

func (m *Memory) LookupByID(id domain.RoomID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return snapshot(room), nil
}

func (m *Memory) AddParticipant(id domain.RoomID, p *domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if len(room.Participants) >= domain.MaxParticipants {
		return domain.ErrRoomFull
	}
	room.Participants = append(room.Participants, p)
	log.Info().Str("module", "registry").Str("room", string(id)).Str("cid", string(p.ConnectionID)).Int("count", len(room.Participants)).Msg("participant added")
	return nil
}

func (m *Memory) RemoveParticipant(id domain.RoomID, cid domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	kept := room.Participants[:0]
	for _, p := range room.Participants {
		if p.ConnectionID != cid {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(room.Participants) {
		return
	}
	room.Participants = kept
	log.Info().Str("module", "registry").Str("room", string(id)).Str("cid", string(cid)).Msg("participant removed")

	// The emptied room must not be observable after this call.
	if len(room.Participants) == 0 {
		delete(m.rooms, id)
		delete(m.byCode, room.JoinCode)
		log.Info().Str("module", "registry").Str("room", string(id)).Msg("empty room deleted")
	}
}

func (m *Memory) SetMuted(id domain.RoomID, cid domain.ConnectionID, muted bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(id, cid); p != nil {
		p.SetMuted(muted)
		return true
	}
	return false
}

func (m *Memory) SetSpeaking(id domain.RoomID, cid domain.ConnectionID, speaking bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(id, cid); p != nil {
		p.SetSpeaking(speaking)
		return true
	}
	return false
}

func (m *Memory) Participants(id domain.RoomID) []domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil
	}
	out := make([]domain.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		out = append(out, *p)
	}
	return out
}

// find must be called with the write lock held.
func (m *Memory) find(id domain.RoomID, cid domain.ConnectionID) *domain.Participant {
	room, ok := m.rooms[id]
	if !ok {
		return nil
	}
	for _, p := range room.Participants {
		if p.ConnectionID == cid {
			return p
		}
	}
	return nil
}

// freshRoomID retries until the generated id is unused. Collisions are
// astronomically unlikely at 26^16, but uniqueness is the contract.
func (m *Memory) freshRoomID() (domain.RoomID, error) {
	for {
		s, err := randomString(roomIDAlphabet, domain.RoomIDLen)
		if err != nil {
			return "", err
		}
		if _, taken := m.rooms[domain.RoomID(s)]; !taken {
			return domain.RoomID(s), nil
		}
	}
}

func (m *Memory) freshJoinCode() (domain.JoinCode, error) {
	for {
		s, err := randomString(joinCodeAlphabet, domain.JoinCodeLen)
		if err != nil {
			return "", err
		}
		if _, taken := m.byCode[domain.JoinCode(s)]; !taken {
			return domain.JoinCode(s), nil
		}
	}
}

func snapshot(room *domain.Room) domain.Room {
	out := domain.Room{
		ID:        room.ID,
		JoinCode:  room.JoinCode,
		CreatedAt: room.CreatedAt,
	}
	for _, p := range room.Participants {
		cp := *p
		out.Participants = append(out.Participants, &cp)
	}
	return out
}
