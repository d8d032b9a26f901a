package mixer

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const epsilon = 1e-9

func TestVolumesFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Volumes
	}{
		{0.0, Volumes{Harmony: 0, Neutral: 0.3, Tension: 0.7}},
		{0.5, Volumes{Harmony: 0.5, Neutral: 0.5, Tension: 0.2}},
		{1.0, Volumes{Harmony: 1, Neutral: 0.3, Tension: 0}},
		{0.25, Volumes{Harmony: 0.25, Neutral: 0.4, Tension: 0.45}},
		{math.NaN(), Volumes{Harmony: 0, Neutral: 0.3, Tension: 0.7}},
	}

	for _, tt := range tests {
		got := VolumesFor(tt.score)
		if math.Abs(got.Harmony-tt.want.Harmony) > epsilon ||
			math.Abs(got.Neutral-tt.want.Neutral) > epsilon ||
			math.Abs(got.Tension-tt.want.Tension) > epsilon {
			t.Errorf("VolumesFor(%v) = %+v, want %+v", tt.score, got, tt.want)
		}
	}
}

type fakeStem struct {
	volume  float64
	playing bool
	sets    int
}

func (s *fakeStem) SetVolume(v float64) { s.volume = v; s.sets++ }
func (s *fakeStem) Play()               { s.playing = true }
func (s *fakeStem) Pause()              { s.playing = false }

func TestMixer(t *testing.T) {
	h, n, tn := &fakeStem{}, &fakeStem{}, &fakeStem{}
	m := New(h, n, tn)

	m.Update(0.9)
	if h.sets != 0 {
		t.Error("stems should not change volume before Start")
	}
	if got := m.Current(); math.Abs(got.Harmony-0.9) > epsilon {
		t.Errorf("Current() = %+v, want harmony 0.9 even when silent", got)
	}

	m.Start()
	if !m.Playing() || !h.playing || !n.playing || !tn.playing {
		t.Fatal("Start() should play every stem")
	}
	if math.Abs(n.volume-0.5) > epsilon {
		t.Errorf("neutral volume after Start = %v, want 0.5", n.volume)
	}

	m.Update(1.0)
	if h.volume != 1 || tn.volume != 0 {
		t.Errorf("volumes at 1.0: harmony=%v tension=%v", h.volume, tn.volume)
	}

	m.Stop()
	if m.Playing() || h.playing {
		t.Error("Stop() should pause the stems")
	}
}

func TestMixer_NoStems(t *testing.T) {
	m := New(nil, nil, nil)
	m.Start()
	v := m.Update(0.3)
	if math.Abs(v.Tension-0.4) > epsilon {
		t.Errorf("Update(0.3).Tension = %v, want 0.4", v.Tension)
	}
	m.Stop()
}

func TestFindStem(t *testing.T) {
	dir := t.TempDir()
	if _, err := findStem(dir, HarmonyStem); !errors.Is(err, ErrStemNotFound) {
		t.Errorf("findStem() on empty dir = %v, want ErrStemNotFound", err)
	}

	ogg := filepath.Join(dir, "tension.ogg")
	if err := os.WriteFile(ogg, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := findStem(dir, TensionStem)
	if err != nil || got != ogg {
		t.Errorf("findStem() = %q, %v, want %q", got, err, ogg)
	}
}
