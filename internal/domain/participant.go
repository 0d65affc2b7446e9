package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// ConnectionID identifies one live signaling channel. It is valid only for
// the lifetime of that channel and is never reused as durable user identity.
type ConnectionID string

// Participant is one roster entry of a room.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Username     string       `json:"username"`
	AvatarURL    string       `json:"profilePicture,omitempty"`
	Muted        bool         `json:"isMuted"`
	Speaking     bool         `json:"isSpeaking"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(cid ConnectionID, username, avatarURL string) (*Participant, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Participant{ConnectionID: cid, Username: username, AvatarURL: avatarURL}, nil
}

// SetMuted flips the mute flag. Muting always clears Speaking so the
// roster never shows a muted participant as speaking.
func (p *Participant) SetMuted(muted bool) {
	p.Muted = muted
	if muted {
		p.Speaking = false
	}
}

// SetSpeaking updates the speaking flag. The value is forced to false
// while the participant is muted.
func (p *Participant) SetSpeaking(speaking bool) {
	if p.Muted {
		p.Speaking = false
		return
	}
	p.Speaking = speaking
}
