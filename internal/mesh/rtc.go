package mesh

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PeerLink implements Link over a pion PeerConnection.
type PeerLink struct {
	pc   *webrtc.PeerConnection
	peer string

	onICE   func(webrtc.ICECandidateInit)
	onState func(LinkState)
}

func WebRTCConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// NewPeerLink builds the transport for one edge. localTrack may be nil for
// a receive-only participant; onTrack receives the remote audio track.
func NewPeerLink(
	cfg webrtc.Configuration,
	peer string,
	localTrack *webrtc.TrackLocalStaticRTP,
	onTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver),
) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	l := &PeerLink{pc: pc, peer: peer}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && l.onICE != nil {
			l.onICE(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "mesh.rtc").Str("peer", peer).Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if l.onState != nil {
				l.onState(LinkConnected)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if l.onState != nil {
				l.onState(LinkFailed)
			}
		}
	})

	if onTrack != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			log.Info().
				Str("module", "mesh.rtc").
				Str("peer", peer).
				Str("kind", track.Kind().String()).
				Str("track_id", track.ID()).
				Msg("remote track")
			onTrack(track, receiver)
		})
	}

	if localTrack != nil {
		sender, err := pc.AddTrack(localTrack)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		// Drain RTCP so interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	return l, nil
}

func (l *PeerLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	// Candidates trickle through OnICECandidate; the description goes out
	// as-is.
	return *l.pc.LocalDescription(), nil
}

func (l *PeerLink) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *l.pc.LocalDescription(), nil
}

func (l *PeerLink) HandleAnswer(answer webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(answer)
}

func (l *PeerLink) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(cand)
}

func (l *PeerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onICE = fn }

func (l *PeerLink) OnStateChange(fn func(LinkState)) { l.onState = fn }

func (l *PeerLink) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "mesh.rtc").Str("peer", l.peer).Msg("close error")
	}
}
