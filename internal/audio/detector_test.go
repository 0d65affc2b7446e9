package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubSource struct {
	mu     sync.Mutex
	frame  []int16
	closed bool
}

func (s *stubSource) ReadFrame() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.frame))
	copy(out, s.frame)
	return out, nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSource) setFrame(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

func (s *stubSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testConfig() Config {
	return Config{Window: 256, Threshold: 0.003, Interval: time.Millisecond}
}

func newTestDetector(t *testing.T, src Source) (*Detector, chan bool) {
	t.Helper()
	transitions := make(chan bool, 16)
	d := NewDetector(func() (Source, error) { return src, nil }, testConfig(), func(speaking bool) {
		transitions <- speaking
	})
	return d, transitions
}

func awaitTransition(t *testing.T, ch chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("speaking transition = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speaking=%v", want)
	}
}

func TestDetectorSpeakingTransitions(t *testing.T) {
	src := &stubSource{frame: make([]int16, 960)}
	d, transitions := newTestDetector(t, src)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if d.State() != Active {
		t.Fatalf("state = %v, want Active", d.State())
	}

	src.setFrame(sineFrame(960, 30, 0.9))
	awaitTransition(t, transitions, true)
	if !d.Speaking() {
		t.Fatal("Speaking() = false after loud transition")
	}

	src.setFrame(make([]int16, 960))
	awaitTransition(t, transitions, false)
	if d.Speaking() {
		t.Fatal("Speaking() = true after silence")
	}
}

func TestDetectorMutedStaysSilent(t *testing.T) {
	src := &stubSource{frame: sineFrame(960, 30, 0.9)}
	d, transitions := newTestDetector(t, src)
	d.SetMuted(true)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	select {
	case got := <-transitions:
		t.Fatalf("unexpected transition %v while muted", got)
	case <-time.After(50 * time.Millisecond):
	}
	if d.Speaking() {
		t.Fatal("Speaking() = true while muted")
	}
}

func TestDetectorMuteWhileSpeaking(t *testing.T) {
	src := &stubSource{frame: sineFrame(960, 30, 0.9)}
	d, transitions := newTestDetector(t, src)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	awaitTransition(t, transitions, true)

	// Muting publishes false immediately; the loud source must not flip it
	// back while the mute holds.
	d.SetMuted(true)
	awaitTransition(t, transitions, false)
	select {
	case got := <-transitions:
		t.Fatalf("unexpected transition %v after mute", got)
	case <-time.After(50 * time.Millisecond):
	}

	d.SetMuted(false)
	awaitTransition(t, transitions, true)
}

func TestDetectorAcquireFailure(t *testing.T) {
	acquireErr := errors.New("no capture device")
	d := NewDetector(func() (Source, error) { return nil, acquireErr }, testConfig(), nil)
	if err := d.Start(context.Background()); !errors.Is(err, acquireErr) {
		t.Fatalf("Start err = %v, want %v", err, acquireErr)
	}
	if d.State() != Idle {
		t.Fatalf("state = %v, want Idle after failed acquisition", d.State())
	}
}

func TestDetectorStopReleasesSource(t *testing.T) {
	src := &stubSource{frame: sineFrame(960, 30, 0.9)}
	d, transitions := newTestDetector(t, src)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	awaitTransition(t, transitions, true)

	d.Stop()
	if !src.isClosed() {
		t.Fatal("source not closed after Stop")
	}
	if d.State() != Idle {
		t.Fatalf("state = %v, want Idle after Stop", d.State())
	}

	// No callback may arrive once Stop has returned.
	select {
	case got := <-transitions:
		t.Fatalf("transition %v after Stop", got)
	case <-time.After(50 * time.Millisecond):
	}

	// Stopping twice is fine.
	d.Stop()
}

func TestDetectorStartTwice(t *testing.T) {
	src := &stubSource{frame: make([]int16, 960)}
	acquisitions := 0
	d := NewDetector(func() (Source, error) {
		acquisitions++
		return src, nil
	}, testConfig(), nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if acquisitions != 1 {
		t.Fatalf("acquisitions = %d, want 1", acquisitions)
	}
}
