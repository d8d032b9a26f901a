package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	frame Frame
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFrame sets the landmarks that will be returned by Detect.
func (m *MockDetector) SetFrame(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = f
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured landmarks or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Frame{}, m.err
	}
	return m.frame, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// FaceHalfWidth is half the face width used by FaceAt.
const FaceHalfWidth = 0.08

// FaceAt returns a synthetic face centred at (cx, cy).
//
// facing shifts the nose tip horizontally away from the midpoint of the face
// edges: positive values turn the face toward +x. mouthRatio is the mouth
// width as a fraction of the face width.
func FaceAt(cx, cy, facing, mouthRatio float64) FaceLandmarks {
	var f FaceLandmarks
	for i := range f.Points {
		f.Points[i] = Point{X: cx, Y: cy}
	}

	faceWidth := 2 * FaceHalfWidth
	mouthHalf := mouthRatio * faceWidth / 2

	f.Points[FaceLeft] = Point{X: cx - FaceHalfWidth, Y: cy}
	f.Points[FaceRight] = Point{X: cx + FaceHalfWidth, Y: cy}
	f.Points[NoseTip] = Point{X: cx + facing, Y: cy}
	f.Points[MouthLeft] = Point{X: cx - mouthHalf, Y: cy + 0.05}
	f.Points[MouthRight] = Point{X: cx + mouthHalf, Y: cy + 0.05}
	f.Points[UpperLip] = Point{X: cx, Y: cy + 0.045}
	f.Points[LowerLip] = Point{X: cx, Y: cy + 0.055}
	f.Points[LeftEyeInner] = Point{X: cx - 0.02, Y: cy - 0.03}
	f.Points[RightEyeInner] = Point{X: cx + 0.02, Y: cy - 0.03}

	return f
}

// HandAt returns a synthetic open hand whose palm center is at (x, y).
func HandAt(x, y float64, handedness string) HandLandmarks {
	h := HandLandmarks{
		Handedness: handedness,
		Score:      0.95,
	}

	h.Points[Wrist] = Point{X: x, Y: y + 0.08}
	for i := 1; i < NumHandLandmarks; i++ {
		// Fan the fingers out above the wrist.
		finger := float64((i-1)/4) - 2
		joint := float64((i-1)%4 + 1)
		h.Points[i] = Point{X: x + finger*0.01, Y: y + 0.04 - joint*0.02}
	}
	h.Points[PalmCenter] = Point{X: x, Y: y}

	return h
}
