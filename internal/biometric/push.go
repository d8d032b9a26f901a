package biometric

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMissingField is returned when a push omits a required field.
var ErrMissingField = errors.New("missing field")

// Push is the wire form of a biometric reading sent by a collaborator, over
// HTTP or a broker.
type Push struct {
	PersonID      string   `json:"person_id"`
	HeartRate     *float64 `json:"heart_rate"`
	BreathingRate *float64 `json:"breathing_rate"`
}

// DecodePush reads exactly one push object from r. Unknown fields, trailing
// data and missing fields are rejected.
func DecodePush(r io.Reader) (Push, error) {
	var p Push
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Push{}, fmt.Errorf("decode push: %w", err)
	}
	if dec.More() {
		return Push{}, errors.New("decode push: trailing data after object")
	}

	switch {
	case p.PersonID == "":
		return Push{}, fmt.Errorf("%w: person_id", ErrMissingField)
	case p.HeartRate == nil:
		return Push{}, fmt.Errorf("%w: heart_rate", ErrMissingField)
	case p.BreathingRate == nil:
		return Push{}, fmt.Errorf("%w: breathing_rate", ErrMissingField)
	}
	return p, nil
}

// Apply validates the push and records it in the store.
func (p Push) Apply(s *Store) (Sample, error) {
	id, err := ParsePersonID(p.PersonID)
	if err != nil {
		return Sample{}, err
	}
	if p.HeartRate == nil || p.BreathingRate == nil {
		return Sample{}, ErrMissingField
	}
	return s.Push(id, *p.HeartRate, *p.BreathingRate)
}
