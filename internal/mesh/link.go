package mesh

import "github.com/pion/webrtc/v4"

// LinkState is the terminal outcome of one edge's transport.
type LinkState int

const (
	LinkConnected LinkState = iota
	LinkFailed
)

// Link is the negotiable transport for a single edge. The coordinator only
// drives the SDP/candidate exchange; the concrete implementation (a pion
// PeerConnection in this repo) owns the media plumbing.
type Link interface {
	// CreateOffer produces and installs the local offer. Initiator side.
	CreateOffer() (webrtc.SessionDescription, error)
	// HandleOffer installs the remote offer and returns the local answer.
	// Responder side.
	HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// HandleAnswer installs the remote answer on the initiator side.
	HandleAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote trickle candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets the callback for locally gathered candidates.
	// Must be set before the first offer/answer is created.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets the callback for terminal transport transitions.
	OnStateChange(func(LinkState))
	Close()
}

// LinkFactory builds the transport for one peer edge.
type LinkFactory func(peer string) (Link, error)
