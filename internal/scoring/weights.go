package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is returned by Weights.Validate.
var ErrInvalidWeights = errors.New("invalid channel weights")

// weightSumTolerance absorbs rounding in hand-edited config files.
const weightSumTolerance = 1e-6

// Weights is the per-channel contribution to the raw score.
type Weights struct {
	HeartRate  float64 `yaml:"heart_rate" json:"heart_rate"`
	EyeContact float64 `yaml:"eye_contact" json:"eye_contact"`
	Breathing  float64 `yaml:"breathing" json:"breathing"`
	Smile      float64 `yaml:"smile" json:"smile"`
	Hand       float64 `yaml:"hand" json:"hand"`
}

// DefaultWeights returns the reference weighting. Heart-rate similarity is
// the core signal; eye contact is the strongest visual one.
func DefaultWeights() Weights {
	return Weights{
		HeartRate:  0.35,
		EyeContact: 0.20,
		Breathing:  0.15,
		Smile:      0.15,
		Hand:       0.15,
	}
}

// Sum returns the total of all channel weights.
func (w Weights) Sum() float64 {
	return w.HeartRate + w.EyeContact + w.Breathing + w.Smile + w.Hand
}

// Validate rejects negative or non-finite weights and vectors that do not
// sum to 1.
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"heart_rate", w.HeartRate},
		{"eye_contact", w.EyeContact},
		{"breathing", w.Breathing},
		{"smile", w.Smile},
		{"hand", w.Hand},
	}

	for _, n := range named {
		if n.v < 0 || math.IsNaN(n.v) || math.IsInf(n.v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, n.name, n.v)
		}
	}

	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1", ErrInvalidWeights, sum)
	}

	return nil
}
