// Package vision runs the camera → landmark detector → feature extractor loop
// and publishes the latest snapshot for the scoring loop.
package vision

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/heartsync/internal/capture"
	"github.com/ayusman/heartsync/internal/detector"
	"github.com/ayusman/heartsync/internal/features"
	"github.com/ayusman/heartsync/internal/log"
)

// Pipeline timing defaults.
const (
	DefaultActiveFPS   = 15
	DefaultIdleFPS     = 5
	DefaultIdleAfter   = 2 * time.Second
	DefaultStopTimeout = 2 * time.Second
)

// readFailureLimit is how many consecutive camera read failures are
// tolerated before the published snapshot is cleared.
const readFailureLimit = 3

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
// The camera is left open in that case since the loop may still be reading.
var ErrStopTimeout = errors.New("vision pipeline did not stop in time")

// Config controls capture rates and shutdown.
type Config struct {
	ActiveFPS   int
	IdleFPS     int
	IdleAfter   time.Duration
	StopTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ActiveFPS <= 0 {
		c.ActiveFPS = DefaultActiveFPS
	}
	if c.IdleFPS <= 0 {
		c.IdleFPS = DefaultIdleFPS
	}
	if c.IdleFPS > c.ActiveFPS {
		c.IdleFPS = c.ActiveFPS
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Pipeline owns the camera, motion detector and landmark detector for as
// long as it runs. It is the only writer of the snapshot cell. While the
// camera or the detector is failing the cell holds no snapshot, so readers
// see features.Empty.
type Pipeline struct {
	cfg      Config
	camera   capture.Camera
	motion   *capture.MotionDetector
	detector detector.Detector
	cell     *features.Cell
	now      func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}

	frames atomic.Int64
}

// New creates a Pipeline writing snapshots into cell.
func New(cam capture.Camera, motion *capture.MotionDetector, det detector.Detector, cell *features.Cell, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg.withDefaults(),
		camera:   cam,
		motion:   motion,
		detector: det,
		cell:     cell,
		now:      time.Now,
	}
}

// Start opens the camera and launches the capture loop. Calling Start on a
// running pipeline does nothing.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopCh != nil {
		return nil
	}

	if err := p.camera.Open(); err != nil {
		return err
	}
	p.camera.SetFPS(p.cfg.ActiveFPS)

	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stopCh, p.done)

	log.Info("vision pipeline started", "active_fps", p.cfg.ActiveFPS, "idle_fps", p.cfg.IdleFPS)
	return nil
}

// Stop signals the loop, waits up to the configured timeout for it to exit
// and then releases the camera, motion detector and landmark detector.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopCh == nil {
		return nil
	}

	close(p.stopCh)
	done := p.done
	p.stopCh = nil
	p.done = nil

	select {
	case <-done:
	case <-time.After(p.cfg.StopTimeout):
		log.Warn("vision pipeline stop timed out", "timeout", p.cfg.StopTimeout)
		return ErrStopTimeout
	}

	var errs []error
	if err := p.camera.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.motion != nil {
		p.motion.Close()
	}
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("vision pipeline stopped", "frames", p.frames.Load())
	return errors.Join(errs...)
}

// Running reports whether the capture loop is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh != nil
}

// Frames returns how many snapshots have been published.
func (p *Pipeline) Frames() int64 {
	return p.frames.Load()
}

func (p *Pipeline) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	throttle := capture.NewThrottle(p.cfg.ActiveFPS, p.cfg.IdleFPS, p.cfg.IdleAfter, p.now())
	ticker := time.NewTicker(interval(throttle.FPS()))
	defer ticker.Stop()

	readFailures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := p.camera.ReadFrame()
		if err != nil {
			readFailures++
			log.Debug("camera read failed", "error", err, "consecutive", readFailures)
			if readFailures == readFailureLimit {
				log.Warn("camera unavailable, clearing vision signals", "error", err)
				p.cell.Reset()
			}
			continue
		}
		readFailures = 0

		if p.motion != nil {
			moving, _ := p.motion.Detect(frame)
			if fps, changed := throttle.Observe(moving, p.now()); changed {
				p.camera.SetFPS(fps)
				ticker.Reset(interval(fps))
				log.Debug("capture rate changed", "fps", fps, "active", throttle.Active())
			}
		}

		lm, err := p.detector.Detect(frame)
		frame.Close()
		if err != nil {
			log.Warn("landmark detection failed", "error", err)
			p.cell.Reset()
			continue
		}

		snap := features.Extract(lm)
		snap.CapturedAt = p.now()
		p.cell.Store(snap)
		p.frames.Add(1)
	}
}

func interval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
