// Package biometric keeps the latest heart-rate and breathing-rate sample for
// each of the two participants.
package biometric

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// PersonID identifies one of the two participants.
type PersonID string

const (
	PersonA PersonID = "A"
	PersonB PersonID = "B"
)

// DefaultStaleAfter is the sample age after which data is shown as not fresh.
const DefaultStaleAfter = 5 * time.Second

var (
	// ErrUnknownPerson is returned for a person id other than A or B.
	ErrUnknownPerson = errors.New("unknown person id")
	// ErrInvalidRate is returned for negative or non-finite rates.
	ErrInvalidRate = errors.New("invalid rate")
)

// ParsePersonID validates a person id received from a collaborator.
func ParsePersonID(s string) (PersonID, error) {
	switch PersonID(s) {
	case PersonA, PersonB:
		return PersonID(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPerson, s)
	}
}

// Sample is one biometric reading. A zero rate means "no signal".
type Sample struct {
	Person        PersonID  `json:"person_id"`
	HeartRate     float64   `json:"heart_rate"`
	BreathingRate float64   `json:"breathing_rate"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Validate checks the rates of a pushed sample.
func (s Sample) Validate() error {
	if _, err := ParsePersonID(string(s.Person)); err != nil {
		return err
	}
	for name, v := range map[string]float64{"heart_rate": s.HeartRate, "breathing_rate": s.BreathingRate} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidRate, name, v)
		}
	}
	return nil
}

// slot holds one person's latest sample. Each person has its own lock so
// pushes for different people never contend.
type slot struct {
	mu     sync.RWMutex
	sample Sample
}

// Store holds the latest sample per person, last value wins.
type Store struct {
	a, b       slot
	staleAfter time.Duration
	now        func() time.Time
}

// NewStore creates an empty Store. staleAfter <= 0 uses DefaultStaleAfter.
func NewStore(staleAfter time.Duration) *Store {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	s := &Store{
		staleAfter: staleAfter,
		now:        time.Now,
	}
	s.a.sample.Person = PersonA
	s.b.sample.Person = PersonB
	return s
}

// SetClock replaces the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) slot(p PersonID) (*slot, error) {
	switch p {
	case PersonA:
		return &s.a, nil
	case PersonB:
		return &s.b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPerson, p)
	}
}

// Push records a new reading for a person. The receipt time is assigned here.
func (s *Store) Push(p PersonID, heartRate, breathingRate float64) (Sample, error) {
	sample := Sample{
		Person:        p,
		HeartRate:     heartRate,
		BreathingRate: breathingRate,
	}
	if err := sample.Validate(); err != nil {
		return Sample{}, err
	}

	sl, err := s.slot(p)
	if err != nil {
		return Sample{}, err
	}

	sample.ObservedAt = s.now()

	sl.mu.Lock()
	sl.sample = sample
	sl.mu.Unlock()

	return sample, nil
}

// Latest returns the most recent sample for a person. A person that has
// never pushed returns a zero-rate sample with a zero ObservedAt.
func (s *Store) Latest(p PersonID) Sample {
	sl, err := s.slot(p)
	if err != nil {
		return Sample{Person: p}
	}

	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.sample
}

// Both returns the latest samples for A and B.
func (s *Store) Both() (Sample, Sample) {
	return s.Latest(PersonA), s.Latest(PersonB)
}

// Fresh reports whether the person's latest sample is younger than the
// staleness threshold. Freshness is for display only; scoring uses the last
// value whatever its age.
func (s *Store) Fresh(p PersonID) bool {
	sample := s.Latest(p)
	if sample.ObservedAt.IsZero() {
		return false
	}
	return s.now().Sub(sample.ObservedAt) < s.staleAfter
}

// Reading is a participant's display view.
type Reading struct {
	HeartRate     float64 `json:"heart_rate"`
	BreathingRate float64 `json:"breathing_rate"`
	DataFresh     bool    `json:"data_fresh"`
}

// Reading returns the display view of a person's latest sample.
func (s *Store) Reading(p PersonID) Reading {
	sample := s.Latest(p)
	return Reading{
		HeartRate:     sample.HeartRate,
		BreathingRate: sample.BreathingRate,
		DataFresh:     s.Fresh(p),
	}
}
