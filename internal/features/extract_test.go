package features

import (
	"math"
	"sync"
	"testing"

	"github.com/ayusman/heartsync/internal/detector"
)

const epsilon = 1e-9

func TestDetectSmile(t *testing.T) {
	t.Run("below band is zero", func(t *testing.T) {
		for _, ratio := range []float64{0, 0.1, 0.2, 0.27, 0.28} {
			face := detector.FaceAt(0.5, 0.5, 0, ratio)
			if got := DetectSmile(&face); got > epsilon {
				t.Errorf("ratio %.2f: DetectSmile() = %f, want 0", ratio, got)
			}
		}
	})

	t.Run("above band is one", func(t *testing.T) {
		for _, ratio := range []float64{0.44, 0.5, 0.8} {
			face := detector.FaceAt(0.5, 0.5, 0, ratio)
			if got := DetectSmile(&face); got != 1 {
				t.Errorf("ratio %.2f: DetectSmile() = %f, want 1", ratio, got)
			}
		}
	})

	t.Run("midpoint of band", func(t *testing.T) {
		face := detector.FaceAt(0.5, 0.5, 0, 0.355)
		if got := DetectSmile(&face); math.Abs(got-0.5) > 1e-6 {
			t.Errorf("DetectSmile() = %f, want 0.5", got)
		}
	})

	t.Run("monotonic across band", func(t *testing.T) {
		prev := -1.0
		for ratio := 0.28; ratio <= 0.43; ratio += 0.005 {
			got := SmileFromRatio(ratio)
			if got < prev {
				t.Fatalf("smile decreased at ratio %.3f: %f < %f", ratio, got, prev)
			}
			if got < 0 || got > 1 {
				t.Fatalf("smile out of range at ratio %.3f: %f", ratio, got)
			}
			prev = got
		}
	})

	t.Run("zero face width", func(t *testing.T) {
		var face detector.FaceLandmarks
		face.Points[detector.MouthLeft] = detector.Point{X: 0.4, Y: 0.5}
		face.Points[detector.MouthRight] = detector.Point{X: 0.6, Y: 0.5}
		if got := DetectSmile(&face); got != 0 {
			t.Errorf("DetectSmile() = %f, want 0 for degenerate face", got)
		}
	})
}

func TestBothSmiling(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{0.6, 0.7, true},
		{0.51, 0.51, true},
		{0.5, 0.9, false},
		{0.9, 0.5, false},
		{0.9, 0, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		if got := BothSmiling(tt.a, tt.b); got != tt.want {
			t.Errorf("BothSmiling(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDetectEyeContact(t *testing.T) {
	tests := []struct {
		name string
		a, b detector.FaceLandmarks
		want bool
	}{
		{
			name: "facing each other",
			a:    detector.FaceAt(0.3, 0.4, 0.02, 0.3),
			b:    detector.FaceAt(0.7, 0.4, -0.02, 0.3),
			want: true,
		},
		{
			name: "facing each other, right face first",
			a:    detector.FaceAt(0.7, 0.4, -0.02, 0.3),
			b:    detector.FaceAt(0.3, 0.4, 0.02, 0.3),
			want: true,
		},
		{
			name: "left face turned away",
			a:    detector.FaceAt(0.3, 0.4, -0.03, 0.3),
			b:    detector.FaceAt(0.7, 0.4, -0.02, 0.3),
			want: false,
		},
		{
			name: "right face turned away",
			a:    detector.FaceAt(0.3, 0.4, 0.02, 0.3),
			b:    detector.FaceAt(0.7, 0.4, 0.03, 0.3),
			want: false,
		},
		{
			name: "small turn inside dead zone",
			a:    detector.FaceAt(0.3, 0.4, -0.005, 0.3),
			b:    detector.FaceAt(0.7, 0.4, 0.005, 0.3),
			want: true,
		},
		{
			name: "both looking at camera",
			a:    detector.FaceAt(0.3, 0.4, 0, 0.3),
			b:    detector.FaceAt(0.7, 0.4, 0, 0.3),
			want: true,
		},
		{
			name: "not at eye level",
			a:    detector.FaceAt(0.3, 0.3, 0.02, 0.3),
			b:    detector.FaceAt(0.7, 0.5, -0.02, 0.3),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEyeContact(&tt.a, &tt.b); got != tt.want {
				t.Errorf("DetectEyeContact() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	p := detector.Point{X: 0.1, Y: 0.1}
	q := detector.Point{X: 0.4, Y: 0.5}

	if got := Distance(p, q); math.Abs(got-0.5) > epsilon {
		t.Errorf("Distance() = %f, want 0.5", got)
	}
	if got := Distance(p, p); got != 0 {
		t.Errorf("Distance(p, p) = %f, want 0", got)
	}
	far := Distance(detector.Point{X: 0, Y: 0}, detector.Point{X: 1, Y: 1})
	if far != 1 {
		t.Errorf("Distance() = %f, want clamp to 1", far)
	}
}

func TestFaceDistance(t *testing.T) {
	a := detector.FaceAt(0.3, 0.4, 0.02, 0.3)
	b := detector.FaceAt(0.7, 0.4, -0.02, 0.3)

	if got := FaceDistance([]detector.FaceLandmarks{a, b}); math.Abs(got-0.36) > epsilon {
		t.Errorf("FaceDistance() = %f, want 0.36", got)
	}
	if got := FaceDistance([]detector.FaceLandmarks{a}); got != Unknown {
		t.Errorf("FaceDistance() with one face = %f, want %f", got, Unknown)
	}
	if got := FaceDistance(nil); got != Unknown {
		t.Errorf("FaceDistance() with no faces = %f, want %f", got, Unknown)
	}
}

func TestHandDistance(t *testing.T) {
	t.Run("fewer than two hands", func(t *testing.T) {
		for _, hands := range [][]detector.HandLandmarks{
			nil,
			{detector.HandAt(0.5, 0.5, "Left")},
		} {
			d := HandDistance(hands)
			if d != Unknown {
				t.Errorf("HandDistance() = %f, want %f", d, Unknown)
			}
			if HandsTouching(d) {
				t.Error("HandsTouching() should be false for unknown distance")
			}
		}
	})

	t.Run("touching hands", func(t *testing.T) {
		hands := []detector.HandLandmarks{
			detector.HandAt(0.5, 0.5, "Left"),
			detector.HandAt(0.54, 0.5, "Right"),
		}
		d := HandDistance(hands)
		if math.Abs(d-0.04) > 1e-9 {
			t.Errorf("HandDistance() = %f, want 0.04", d)
		}
		if !HandsTouching(d) {
			t.Error("HandsTouching() should be true at 0.04")
		}
	})

	t.Run("minimum over all pairs", func(t *testing.T) {
		hands := []detector.HandLandmarks{
			detector.HandAt(0.1, 0.5, "Left"),
			detector.HandAt(0.9, 0.5, "Right"),
			detector.HandAt(0.6, 0.5, "Left"),
			detector.HandAt(0.3, 0.5, "Right"),
		}
		if d := HandDistance(hands); math.Abs(d-0.2) > epsilon {
			t.Errorf("HandDistance() = %f, want 0.2", d)
		}
	})

	t.Run("clamped to one", func(t *testing.T) {
		hands := []detector.HandLandmarks{
			detector.HandAt(0, 0, "Left"),
			detector.HandAt(1, 1, "Right"),
		}
		if d := HandDistance(hands); d != 1 {
			t.Errorf("HandDistance() = %f, want 1", d)
		}
	})
}

func TestExtract(t *testing.T) {
	t.Run("empty frame", func(t *testing.T) {
		s := Extract(detector.Frame{})
		if s != Empty() {
			t.Errorf("Extract(empty) = %+v, want %+v", s, Empty())
		}
		if s.HandDistance != Unknown || s.FaceDistance != Unknown {
			t.Error("expected unknown sentinels")
		}
	})

	t.Run("single face", func(t *testing.T) {
		s := Extract(detector.Frame{
			Faces: []detector.FaceLandmarks{detector.FaceAt(0.5, 0.4, 0, 0.5)},
		})
		if s.FaceCount != 1 {
			t.Errorf("FaceCount = %d, want 1", s.FaceCount)
		}
		if s.SmileScores[0] != 1 || s.SmileScores[1] != 0 {
			t.Errorf("SmileScores = %v, want [1 0]", s.SmileScores)
		}
		if s.BothSmiling {
			t.Error("BothSmiling must be false with a single face")
		}
		if s.EyeContact {
			t.Error("EyeContact must be false with a single face")
		}
		if s.FaceDistance != Unknown {
			t.Errorf("FaceDistance = %f, want unknown", s.FaceDistance)
		}
	})

	t.Run("two smiling faces holding hands", func(t *testing.T) {
		s := Extract(detector.Frame{
			Faces: []detector.FaceLandmarks{
				detector.FaceAt(0.3, 0.4, 0.02, 0.45),
				detector.FaceAt(0.7, 0.4, -0.02, 0.45),
			},
			Hands: []detector.HandLandmarks{
				detector.HandAt(0.5, 0.7, "Right"),
				detector.HandAt(0.52, 0.7, "Left"),
			},
		})
		if s.FaceCount != 2 {
			t.Errorf("FaceCount = %d, want 2", s.FaceCount)
		}
		if !s.BothSmiling || !s.EyeContact || !s.HandsTouching {
			t.Errorf("expected smiling, eye contact and touching: %+v", s)
		}
		if math.Abs(s.FaceDistance-0.36) > epsilon {
			t.Errorf("FaceDistance = %f, want 0.36", s.FaceDistance)
		}
	})

	t.Run("extra faces are ignored", func(t *testing.T) {
		s := Extract(detector.Frame{
			Faces: []detector.FaceLandmarks{
				detector.FaceAt(0.2, 0.4, 0.02, 0.3),
				detector.FaceAt(0.5, 0.4, -0.02, 0.3),
				detector.FaceAt(0.8, 0.4, 0, 0.3),
			},
		})
		if s.FaceCount != 2 {
			t.Errorf("FaceCount = %d, want 2", s.FaceCount)
		}
		if math.Abs(s.FaceDistance-0.26) > epsilon {
			t.Errorf("FaceDistance = %f, want 0.26", s.FaceDistance)
		}
	})
}

func TestCell(t *testing.T) {
	var c Cell

	if got := c.Load(); got != Empty() {
		t.Errorf("Load() before Store = %+v, want empty snapshot", got)
	}

	s := Empty()
	s.EyeContact = true
	s.FaceCount = 2
	c.Store(s)

	got := c.Load()
	if !got.EyeContact || got.FaceCount != 2 {
		t.Errorf("Load() = %+v, want stored snapshot", got)
	}

	// Mutating the returned copy must not affect the stored value.
	got.FaceCount = 0
	if c.Load().FaceCount != 2 {
		t.Error("stored snapshot was mutated through a loaded copy")
	}

	c.Reset()
	if c.Load() != Empty() {
		t.Error("Reset() should restore the empty snapshot")
	}
}

func TestCell_Concurrent(t *testing.T) {
	var c Cell
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s := Empty()
			s.FaceCount = i % 3
			s.SmileScores = [2]float64{float64(i % 3), float64(i % 3)}
			c.Store(s)
		}
	}()

	for i := 0; i < 1000; i++ {
		s := c.Load()
		if s.SmileScores[0] != float64(s.FaceCount) || s.SmileScores[1] != float64(s.FaceCount) {
			t.Fatalf("observed a torn snapshot: %+v", s)
		}
	}

	wg.Wait()
}
