package registry

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/huddlehq/huddle/internal/domain"
)

var (
	roomIDPattern   = regexp.MustCompile(`^[a-z]{16}$`)
	joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{12}$`)
)

func member(t *testing.T, cid string) *domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(domain.ConnectionID(cid), "user-"+cid, "")
	if err != nil {
		t.Fatalf("NewParticipant: %v", err)
	}
	return p
}

func TestCreateRoomIdentifierFormats(t *testing.T) {
	reg := NewMemory()
	room, err := reg.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if !roomIDPattern.MatchString(string(room.ID)) {
		t.Errorf("room id %q does not match %s", room.ID, roomIDPattern)
	}
	if !joinCodePattern.MatchString(string(room.JoinCode)) {
		t.Errorf("join code %q does not match %s", room.JoinCode, joinCodePattern)
	}
	if room.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestJoinCodesUnique(t *testing.T) {
	reg := NewMemory()
	seen := make(map[domain.JoinCode]bool)
	for i := 0; i < 200; i++ {
		room, err := reg.CreateRoom()
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if seen[room.JoinCode] {
			t.Fatalf("join code %q issued twice", room.JoinCode)
		}
		seen[room.JoinCode] = true
	}
}

func TestLookupsAgree(t *testing.T) {
	reg := NewMemory()
	created, err := reg.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	byCode, err := reg.LookupByCode(created.JoinCode)
	if err != nil {
		t.Fatalf("LookupByCode: %v", err)
	}
	byID, err := reg.LookupByID(created.ID)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if byCode.ID != byID.ID || byCode.JoinCode != byID.JoinCode {
		t.Errorf("lookups disagree: %+v vs %+v", byCode, byID)
	}

	if _, err := reg.LookupByCode("NOTACODE1234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("unknown code: got %v, want ErrRoomNotFound", err)
	}
	if _, err := reg.LookupByID("nosuchroomnosuch"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("unknown id: got %v, want ErrRoomNotFound", err)
	}
}

func TestCapacityHardLimit(t *testing.T) {
	reg := NewMemory()
	room, _ := reg.CreateRoom()

	for i := 0; i < domain.MaxParticipants; i++ {
		if err := reg.AddParticipant(room.ID, member(t, fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := reg.AddParticipant(room.ID, member(t, "c4")); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("5th join: got %v, want ErrRoomFull", err)
	}

	roster := reg.Participants(room.ID)
	if len(roster) != domain.MaxParticipants {
		t.Fatalf("roster changed on rejected join: %d participants", len(roster))
	}
	// Join order is preserved.
	for i, p := range roster {
		if want := domain.ConnectionID(fmt.Sprintf("c%d", i)); p.ConnectionID != want {
			t.Errorf("roster[%d] = %s, want %s", i, p.ConnectionID, want)
		}
	}
}

func TestAddParticipantUnknownRoom(t *testing.T) {
	reg := NewMemory()
	if err := reg.AddParticipant("nosuchroomnosuch", member(t, "c0")); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("got %v, want ErrRoomNotFound", err)
	}
}

func TestRemoveLastParticipantDeletesRoom(t *testing.T) {
	reg := NewMemory()
	room, _ := reg.CreateRoom()
	if err := reg.AddParticipant(room.ID, member(t, "c0")); err != nil {
		t.Fatalf("add: %v", err)
	}

	reg.RemoveParticipant(room.ID, "c0")

	if _, err := reg.LookupByID(room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("room id still resolves after emptying: %v", err)
	}
	if _, err := reg.LookupByCode(room.JoinCode); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("join code still resolves after emptying: %v", err)
	}
}

func TestRemoveParticipantIdempotent(t *testing.T) {
	reg := NewMemory()
	room, _ := reg.CreateRoom()
	_ = reg.AddParticipant(room.ID, member(t, "c0"))
	_ = reg.AddParticipant(room.ID, member(t, "c1"))

	reg.RemoveParticipant(room.ID, "c0")
	reg.RemoveParticipant(room.ID, "c0") // explicit leave raced by disconnect

	roster := reg.Participants(room.ID)
	if len(roster) != 1 || roster[0].ConnectionID != "c1" {
		t.Fatalf("unexpected roster after double removal: %+v", roster)
	}

	// Removing from a room that is already gone is also a no-op.
	reg.RemoveParticipant("nosuchroomnosuch", "c0")
}

func TestSpeakingNeverTrueWhileMuted(t *testing.T) {
	reg := NewMemory()
	room, _ := reg.CreateRoom()
	_ = reg.AddParticipant(room.ID, member(t, "c0"))

	if !reg.SetSpeaking(room.ID, "c0", true) {
		t.Fatal("SetSpeaking: participant not found")
	}
	if !reg.Participants(room.ID)[0].Speaking {
		t.Error("speaking not set while unmuted")
	}

	// Muting clears the flag.
	reg.SetMuted(room.ID, "c0", true)
	if p := reg.Participants(room.ID)[0]; !p.Muted || p.Speaking {
		t.Errorf("after mute: %+v", p)
	}

	// Measured volume cannot override mute.
	reg.SetSpeaking(room.ID, "c0", true)
	if reg.Participants(room.ID)[0].Speaking {
		t.Error("speaking became true while muted")
	}

	reg.SetMuted(room.ID, "c0", false)
	reg.SetSpeaking(room.ID, "c0", true)
	if !reg.Participants(room.ID)[0].Speaking {
		t.Error("speaking not restored after unmute")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	reg := NewMemory()
	room, _ := reg.CreateRoom()
	_ = reg.AddParticipant(room.ID, member(t, "c0"))

	snap := reg.Participants(room.ID)
	snap[0].Muted = true

	if reg.Participants(room.ID)[0].Muted {
		t.Error("mutating a snapshot leaked into the registry")
	}
}
