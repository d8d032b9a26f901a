package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion detection constants
const (
	// BlurKernel is the Gaussian blur kernel size applied before differencing.
	BlurKernel = 21
	// PixelDelta is the per-pixel intensity change that counts as motion.
	PixelDelta = 25
	// DefaultMotionThreshold is the percentage of changed pixels that counts as motion.
	DefaultMotionThreshold = 1.0
)

// MotionDetector compares consecutive frames by blurred grayscale
// differencing. Two people sitting still still produce small changes, so the
// result only throttles the capture rate; it never gates detection.
type MotionDetector struct {
	mu          sync.Mutex
	threshold   float64
	prev        gocv.Mat
	initialized bool
}

// NewMotionDetector creates a MotionDetector. threshold is the percentage of
// pixels that must change; values <= 0 use DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Detect reports whether frame differs from the previous one by more than the
// threshold, and the percentage of changed pixels. The first frame only sets
// the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	blurred := grayBlur(frame)
	defer blurred.Close()

	if !m.initialized {
		blurred.CopyTo(&m.prev)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0

	blurred.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// grayBlur returns a blurred grayscale copy of frame. The caller closes it.
func grayBlur(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurKernel, Y: BlurKernel}, 0, 0, gocv.BorderDefault)
	return blurred
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.initialized = false
}

// Throttle picks the capture rate from recent motion: the active rate while
// something moves and the idle rate once nothing has moved for IdleAfter.
type Throttle struct {
	ActiveFPS  int
	IdleFPS    int
	IdleAfter  time.Duration
	lastMotion time.Time
	active     bool
}

// NewThrottle creates a Throttle that starts in active mode.
func NewThrottle(activeFPS, idleFPS int, idleAfter time.Duration, now time.Time) *Throttle {
	return &Throttle{
		ActiveFPS:  activeFPS,
		IdleFPS:    idleFPS,
		IdleAfter:  idleAfter,
		lastMotion: now,
		active:     true,
	}
}

// Observe records a motion result and returns the FPS to use and whether it
// changed.
func (t *Throttle) Observe(motion bool, now time.Time) (fps int, changed bool) {
	if motion {
		t.lastMotion = now
		if !t.active {
			t.active = true
			return t.ActiveFPS, true
		}
		return t.ActiveFPS, false
	}

	if t.active && now.Sub(t.lastMotion) > t.IdleAfter {
		t.active = false
		return t.IdleFPS, true
	}

	return t.FPS(), false
}

// FPS returns the current capture rate.
func (t *Throttle) FPS() int {
	if t.active {
		return t.ActiveFPS
	}
	return t.IdleFPS
}

// Active reports whether the throttle is in active mode.
func (t *Throttle) Active() bool {
	return t.active
}
