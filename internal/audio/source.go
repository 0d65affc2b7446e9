package audio

import (
	"encoding/binary"
	"io"
	"os"
)

// Source yields fixed-size PCM frames from a live capture stream.
type Source interface {
	// ReadFrame returns the next frame of int16 samples. An error ends
	// the sampling loop and releases the source.
	ReadFrame() ([]int16, error)
	Close() error
}

// ReaderSource adapts any little-endian int16 PCM byte stream (a capture
// pipe, a file) into a Source.
type ReaderSource struct {
	r         io.Reader
	buf       []byte
	frameSize int
}

func NewReaderSource(r io.Reader, frameSize int) *ReaderSource {
	return &ReaderSource{
		r:         r,
		buf:       make([]byte, frameSize*2),
		frameSize: frameSize,
	}
}

func (s *ReaderSource) ReadFrame() ([]int16, error) {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		return nil, err
	}
	pcm := make([]int16, s.frameSize)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(s.buf[i*2:]))
	}
	return pcm, nil
}

func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenFileSource opens a raw PCM file or pipe as a capture source. The
// open error doubles as the acquisition failure the detector reports.
func OpenFileSource(path string, frameSize int) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReaderSource(f, frameSize), nil
}
