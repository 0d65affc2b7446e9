package domain

import (
	"strings"
	"testing"
)

func TestNewParticipantValidation(t *testing.T) {
	if _, err := NewParticipant("c0", "", ""); err != ErrUsernameEmpty {
		t.Errorf("empty username: got %v", err)
	}
	if _, err := NewParticipant("c0", strings.Repeat("x", MaxUsernameLen+1), ""); err != ErrUsernameTooLong {
		t.Errorf("long username: got %v", err)
	}
	p, err := NewParticipant("c0", "alice", "https://example.com/a.png")
	if err != nil {
		t.Fatalf("valid participant: %v", err)
	}
	if p.Muted || p.Speaking {
		t.Errorf("fresh participant has flags set: %+v", p)
	}
}

func TestMuteForcesSpeakingFalse(t *testing.T) {
	p, _ := NewParticipant("c0", "alice", "")

	p.SetSpeaking(true)
	if !p.Speaking {
		t.Fatal("speaking not set")
	}

	p.SetMuted(true)
	if p.Speaking {
		t.Fatal("speaking survived mute")
	}

	p.SetSpeaking(true)
	if p.Speaking {
		t.Fatal("speaking set while muted")
	}

	p.SetMuted(false)
	p.SetSpeaking(true)
	if !p.Speaking {
		t.Fatal("speaking not restored after unmute")
	}
}
