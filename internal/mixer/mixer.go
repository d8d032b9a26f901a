// Package mixer crossfades three looping music stems from the connection
// score.
package mixer

import (
	"math"
	"sync"
)

// Volumes holds the gain of each stem in [0,1].
type Volumes struct {
	Harmony float64 `json:"harmony"`
	Neutral float64 `json:"neutral"`
	Tension float64 `json:"tension"`
}

// VolumesFor maps a score to stem volumes. Harmony rises with the score,
// tension fades out by 0.7 and the neutral pad peaks at 0.5.
func VolumesFor(score float64) Volumes {
	if math.IsNaN(score) {
		score = 0
	}
	return Volumes{
		Harmony: math.Max(0, math.Min(1, score)),
		Neutral: 0.3 + 0.2*(1-math.Abs(score-0.5)*2),
		Tension: math.Max(0, 0.7-score),
	}
}

// Stem is one looping audio layer.
type Stem interface {
	SetVolume(v float64)
	Play()
	Pause()
}

// Mixer drives the three stems. A Mixer without stems still tracks volumes
// so they can be shown on the display.
type Mixer struct {
	mu      sync.Mutex
	harmony Stem
	neutral Stem
	tension Stem
	playing bool
	current Volumes
}

// New creates a Mixer over the given stems. Any of them may be nil.
func New(harmony, neutral, tension Stem) *Mixer {
	return &Mixer{
		harmony: harmony,
		neutral: neutral,
		tension: tension,
		current: VolumesFor(0.5),
	}
}

// Start plays every stem at the neutral mix.
func (m *Mixer) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stems() {
		s.Play()
	}
	m.playing = true
	m.apply(VolumesFor(0.5))
}

// Stop pauses every stem.
func (m *Mixer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stems() {
		s.Pause()
	}
	m.playing = false
}

// Update applies the volumes for score and returns them.
func (m *Mixer) Update(score float64) Volumes {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := VolumesFor(score)
	m.apply(v)
	return v
}

// Current returns the last applied volumes.
func (m *Mixer) Current() Volumes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Playing reports whether the stems are playing.
func (m *Mixer) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *Mixer) apply(v Volumes) {
	m.current = v
	if !m.playing {
		return
	}
	if m.harmony != nil {
		m.harmony.SetVolume(v.Harmony)
	}
	if m.neutral != nil {
		m.neutral.SetVolume(v.Neutral)
	}
	if m.tension != nil {
		m.tension.SetVolume(v.Tension)
	}
}

func (m *Mixer) stems() []Stem {
	var out []Stem
	for _, s := range []Stem{m.harmony, m.neutral, m.tension} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
