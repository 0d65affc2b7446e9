package audio

import (
	"gopkg.in/hraban/opus.v2"
)

// OpusEncoder turns PCM frames into Opus packets for the outgoing track.
type OpusEncoder struct {
	enc       *opus.Encoder
	frameSize int
}

func NewOpusEncoder(sampleRate, channels, frameSize int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(64000); err != nil {
		return nil, err
	}
	return &OpusEncoder{enc: enc, frameSize: frameSize}, nil
}

func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	data := make([]byte, 1024)
	n, err := e.enc.Encode(pcm, data)
	if err != nil {
		return nil, err
	}
	return data[:n], nil
}

// FrameSize is the expected samples per channel per frame.
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}
