// Package scoring fuses biometric similarity and visual connection signals
// into a single smoothed connection score and level.
//
// Missing data is not skipped. A channel without a signal (no heart rate yet,
// nobody in frame) contributes 0 and pulls the score down, so the engine
// always produces a decisive value even before every sensor is attached.
package scoring

import (
	"math"
	"sync/atomic"

	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/features"
)

// Similarity falloff scales.
const (
	// HeartRateFalloff is the BPM difference at which heart-rate sync reaches 0.
	HeartRateFalloff = 20.0
	// BreathingFalloff is the breaths/min difference at which breathing sync reaches 0.
	BreathingFalloff = 10.0
	// HandFalloff is the palm distance at which hand proximity reaches 0.
	HandFalloff = 0.3
)

// HistorySize is the number of raw scores averaged into the reported score.
const HistorySize = 10

// Input is everything the engine reads for one tick.
type Input struct {
	HeartRateA     float64
	HeartRateB     float64
	BreathingRateA float64
	BreathingRateB float64
	EyeContact     bool
	BothSmiling    bool
	HandsTouching  bool
	HandDistance   float64
	FaceDistance   float64
}

// InputFrom combines the latest vision snapshot with both biometric samples.
func InputFrom(snap features.Snapshot, a, b biometric.Sample) Input {
	return Input{
		HeartRateA:     a.HeartRate,
		HeartRateB:     b.HeartRate,
		BreathingRateA: a.BreathingRate,
		BreathingRateB: b.BreathingRate,
		EyeContact:     snap.EyeContact,
		BothSmiling:    snap.BothSmiling,
		HandsTouching:  snap.HandsTouching,
		HandDistance:   snap.HandDistance,
		FaceDistance:   snap.FaceDistance,
	}
}

// Result is the engine output for one tick. Values are rounded to three
// decimals for display.
type Result struct {
	Score       float64 `json:"score"`
	Level       Level   `json:"level"`
	HRSync      float64 `json:"hr_sync"`
	BRSync      float64 `json:"br_sync"`
	HandScore   float64 `json:"hand_score"`
	RawScore    float64 `json:"raw_score"`
	EyeContact  bool    `json:"eye_contact"`
	BothSmiling bool    `json:"both_smiling"`
}

// IdleResult is reported before the first tick of a session.
func IdleResult() Result {
	return Result{Level: LevelDisconnected}
}

// Engine computes connection scores. Its only mutable state is the smoothing
// history, which must be driven from a single goroutine.
type Engine struct {
	weights atomic.Pointer[Weights]
	history ring
}

// NewEngine creates an Engine with the given weights. The caller is expected
// to have validated them.
func NewEngine(w Weights) *Engine {
	e := &Engine{}
	e.weights.Store(&w)
	return e
}

// Weights returns the weights used for the next tick.
func (e *Engine) Weights() Weights {
	return *e.weights.Load()
}

// SetWeights replaces the channel weights from the next tick on. It is safe
// to call from any goroutine. Invalid weights are rejected.
func (e *Engine) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	e.weights.Store(&w)
	return nil
}

// Reset clears the smoothing history.
func (e *Engine) Reset() {
	e.history.reset()
}

// Samples returns how many raw scores are currently smoothed.
func (e *Engine) Samples() int {
	return e.history.len()
}

// Compute scores one tick and pushes the raw score into the history.
func (e *Engine) Compute(in Input) Result {
	w := e.Weights()

	hrSync := Similarity(in.HeartRateA, in.HeartRateB, HeartRateFalloff)
	brSync := Similarity(in.BreathingRateA, in.BreathingRateB, BreathingFalloff)
	eyeScore := boolScore(in.EyeContact)
	smileScore := boolScore(in.BothSmiling)
	handScore := HandScore(in.HandsTouching, in.HandDistance)

	raw := clamp01(w.HeartRate*hrSync +
		w.EyeContact*eyeScore +
		w.Breathing*brSync +
		w.Smile*smileScore +
		w.Hand*handScore)

	e.history.push(raw)
	smoothed := clamp01(e.history.mean())

	return Result{
		Score:       round3(smoothed),
		Level:       Classify(smoothed),
		HRSync:      round3(hrSync),
		BRSync:      round3(brSync),
		HandScore:   round3(handScore),
		RawScore:    round3(raw),
		EyeContact:  in.EyeContact,
		BothSmiling: in.BothSmiling,
	}
}

// Similarity is 1 for equal rates, falling linearly to 0 at a difference of
// falloff. Either rate being 0 means no signal and yields 0.
func Similarity(a, b, falloff float64) float64 {
	if !(a > 0 && b > 0) || falloff <= 0 {
		return 0
	}
	return clamp01(1 - math.Abs(a-b)/falloff)
}

// HandScore is 1 when hands touch, otherwise falling linearly with palm
// distance. The unknown sentinel distance yields 0.
func HandScore(touching bool, distance float64) float64 {
	if touching {
		return 1
	}
	return clamp01(1 - distance/HandFalloff)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ring is a fixed-capacity buffer of raw scores, overwritten oldest first.
type ring struct {
	buf  [HistorySize]float64
	n    int
	next int
}

func (r *ring) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % HistorySize
	if r.n < HistorySize {
		r.n++
	}
}

// mean averages the samples held so far, not the full capacity.
func (r *ring) mean() float64 {
	if r.n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.n)
}

func (r *ring) len() int {
	return r.n
}

func (r *ring) reset() {
	*r = ring{}
}
