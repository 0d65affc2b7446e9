package audio

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	sampleRate = 48000
	// 20ms frames at 48kHz.
	frameSamples = 960
	opusPayload  = 111
)

// TrackWriter packetizes encoded mic audio onto one local RTP track. The
// same track is attached to every mesh edge, so one encode pass feeds all
// peers.
type TrackWriter struct {
	track *webrtc.TrackLocalStaticRTP
	enc   *OpusEncoder

	mu  sync.Mutex
	seq uint16
	ts  uint32
}

func NewTrackWriter(id string) (*TrackWriter, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   sampleRate,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		fmt.Sprintf("audio-%s", id),
		fmt.Sprintf("stream-%s", id),
	)
	if err != nil {
		return nil, err
	}
	enc, err := NewOpusEncoder(sampleRate, 1, frameSamples)
	if err != nil {
		return nil, err
	}
	return &TrackWriter{track: track, enc: enc}, nil
}

// Track is the local track to attach to peer connections.
func (w *TrackWriter) Track() *webrtc.TrackLocalStaticRTP {
	return w.track
}

// WriteFrame encodes one 20ms PCM frame and writes it as a single RTP
// packet.
func (w *TrackWriter) WriteFrame(pcm []int16) error {
	payload, err := w.enc.Encode(pcm)
	if err != nil {
		return err
	}

	w.mu.Lock()
	seq := w.seq
	ts := w.ts
	w.seq++
	w.ts += frameSamples
	w.mu.Unlock()

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayload,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x48554444, // overwritten by pion
		},
		Payload: payload,
	}
	return w.track.WriteRTP(packet)
}
