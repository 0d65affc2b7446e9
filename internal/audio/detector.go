// Package audio turns a continuous PCM capture stream into a discrete
// speaking signal, and feeds the same stream into the outgoing Opus track.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State of the detector's acquisition lifecycle.
type State int

const (
	// Idle: no capture source held.
	Idle State = iota
	// Active: source acquired, sampling loop running.
	Active
)

// AcquireFunc opens the capture source. It may fail (device missing,
// permission refused); the detector then stays Idle and the error is
// returned to the caller so optimistic UI state can be reverted.
type AcquireFunc func() (Source, error)

const (
	// DefaultWindow is the analysis window in samples.
	DefaultWindow = 256
	// DefaultThreshold is the mean-magnitude level above which a window
	// counts as speech.
	DefaultThreshold = 0.005
	// DefaultInterval approximates a display-refresh sampling cadence.
	DefaultInterval = time.Second / 60
)

type Config struct {
	Window    int
	Threshold float64
	Interval  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
}

// Detector samples the capture source at a fixed cadence and publishes
// speaking transitions. The speaking signal is forced to false whenever
// the participant is muted, regardless of measured volume.
type Detector struct {
	acquire  AcquireFunc
	cfg      Config
	onChange func(speaking bool)

	mu       sync.Mutex
	state    State
	muted    bool
	speaking bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDetector(acquire AcquireFunc, cfg Config, onChange func(bool)) *Detector {
	cfg.applyDefaults()
	return &Detector{acquire: acquire, cfg: cfg, onChange: onChange}
}

// Start acquires the source and begins the sampling loop. On acquisition
// failure the detector stays Idle. Starting an Active detector is a no-op.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state == Active {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	src, err := d.acquire()
	if err != nil {
		log.Warn().Err(err).Str("module", "audio").Msg("capture acquisition failed")
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	d.state = Active
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go d.run(ctx, src, done)
	log.Info().Str("module", "audio").Msg("detector active")
	return nil
}

// Stop cancels the sampling loop and waits for it to wind down; the source
// is released and no speaking callback fires after Stop returns. Safe to
// call from any state, any number of times.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.state != Active {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done
}

// SetMuted flips the mute flag. Muting immediately forces the published
// speaking state to false without waiting for the next sample.
func (d *Detector) SetMuted(muted bool) {
	d.mu.Lock()
	d.muted = muted
	wasSpeaking := d.speaking
	if muted {
		d.speaking = false
	}
	cb := d.onChange
	d.mu.Unlock()

	if muted && wasSpeaking && cb != nil {
		cb(false)
	}
}

func (d *Detector) Muted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// run owns the source: whatever way the loop exits, the source is released
// and the state returns to Idle.
func (d *Detector) run(ctx context.Context, src Source, done chan struct{}) {
	defer func() {
		_ = src.Close()
		d.mu.Lock()
		d.state = Idle
		d.speaking = false
		d.mu.Unlock()
		close(done)
		log.Info().Str("module", "audio").Msg("detector idle")
	}()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := src.ReadFrame()
			if err != nil {
				log.Warn().Err(err).Str("module", "audio").Msg("capture read ended")
				return
			}
			speaking := meanMagnitude(frame, d.cfg.Window) >= d.cfg.Threshold

			// The cancellation token is checked again before publishing so
			// a concurrent Stop observes no effect after it fires.
			select {
			case <-ctx.Done():
				return
			default:
			}
			d.publish(speaking)
		}
	}
}

func (d *Detector) publish(speaking bool) {
	d.mu.Lock()
	if d.muted {
		speaking = false
	}
	if speaking == d.speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = speaking
	cb := d.onChange
	d.mu.Unlock()

	if cb != nil {
		cb(speaking)
	}
}
