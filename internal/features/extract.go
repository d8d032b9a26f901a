// Package features turns raw face and hand landmarks into bounded,
// interpretable connection signals: smile intensity, eye contact, and hand
// and face proximity.
//
// Every function here is pure. Degenerate geometry and missing people resolve
// to defined defaults rather than errors.
package features

import (
	"math"
	"time"

	"github.com/ayusman/heartsync/internal/detector"
)

// Unknown is the sentinel distance reported when a distance is undefined,
// e.g. fewer than two hands or faces in view.
const Unknown = 999.0

// Tuning constants for the geometric heuristics.
const (
	// SmileRatioLow is the mouth/face width ratio of a neutral mouth.
	SmileRatioLow = 0.28
	// SmileRatioSpan maps SmileRatioLow+SmileRatioSpan to a full smile.
	SmileRatioSpan = 0.15
	// SmilingThreshold is the score both faces must exceed to count as smiling.
	SmilingThreshold = 0.5
	// FacingDeadZone absorbs jitter in the horizontal facing direction.
	FacingDeadZone = 0.01
	// EyeLevelTolerance is the maximum vertical nose offset for eye contact.
	EyeLevelTolerance = 0.15
	// TouchDistance is the palm distance below which hands are touching.
	TouchDistance = 0.05
)

// Snapshot is the feature set extracted from one frame.
type Snapshot struct {
	SmileScores   [2]float64 `json:"smile_scores"`
	BothSmiling   bool       `json:"both_smiling"`
	EyeContact    bool       `json:"eye_contact"`
	HandDistance  float64    `json:"hand_distance"`
	HandsTouching bool       `json:"hands_touching"`
	FaceCount     int        `json:"face_count"`
	FaceDistance  float64    `json:"face_distance"`
	CapturedAt    time.Time  `json:"captured_at"`
}

// Empty returns the snapshot for a frame with nobody in it.
func Empty() Snapshot {
	return Snapshot{
		HandDistance: Unknown,
		FaceDistance: Unknown,
	}
}

// Extract assembles a Snapshot from one frame of landmarks.
// Only the first two faces are analysed; any number of hands is considered.
func Extract(frame detector.Frame) Snapshot {
	s := Empty()

	faces := frame.Faces
	if len(faces) > 2 {
		faces = faces[:2]
	}
	s.FaceCount = len(faces)

	switch len(faces) {
	case 2:
		s.SmileScores[0] = DetectSmile(&faces[0])
		s.SmileScores[1] = DetectSmile(&faces[1])
		s.BothSmiling = BothSmiling(s.SmileScores[0], s.SmileScores[1])
		s.EyeContact = DetectEyeContact(&faces[0], &faces[1])
		s.FaceDistance = FaceDistance(faces)
	case 1:
		s.SmileScores[0] = DetectSmile(&faces[0])
	}

	s.HandDistance = HandDistance(frame.Hands)
	s.HandsTouching = HandsTouching(s.HandDistance)

	return s
}

// DetectSmile scores a face from 0 (neutral) to 1 (full smile) using the
// ratio of mouth width to face width, which does not depend on how far the
// person sits from the camera.
func DetectSmile(face *detector.FaceLandmarks) float64 {
	mouthWidth := euclidean(face.Points[detector.MouthLeft], face.Points[detector.MouthRight])
	faceWidth := euclidean(face.Points[detector.FaceLeft], face.Points[detector.FaceRight])

	if faceWidth == 0 {
		return 0
	}

	return SmileFromRatio(mouthWidth / faceWidth)
}

// SmileFromRatio maps a mouth/face width ratio through the smile ramp.
func SmileFromRatio(widthRatio float64) float64 {
	return clamp01((widthRatio - SmileRatioLow) / SmileRatioSpan)
}

// BothSmiling reports whether both smile scores strictly exceed 0.5.
func BothSmiling(a, b float64) bool {
	return a > SmilingThreshold && b > SmilingThreshold
}

// DetectEyeContact approximates mutual gaze from head orientation.
//
// This is not gaze estimation. A face "faces" the other person when its nose
// tip sits on that person's side of the midpoint between its face edges, and
// both noses must be at roughly the same height.
func DetectEyeContact(a, b *detector.FaceLandmarks) bool {
	noseA := a.Nose()
	noseB := b.Nose()

	dirA := facingDirection(a)
	dirB := facingDirection(b)

	var facingEachOther bool
	if noseA.X < noseB.X {
		facingEachOther = dirA > -FacingDeadZone && dirB < FacingDeadZone
	} else {
		facingEachOther = dirA < FacingDeadZone && dirB > -FacingDeadZone
	}

	atEyeLevel := math.Abs(noseA.Y-noseB.Y) < EyeLevelTolerance

	return facingEachOther && atEyeLevel
}

// facingDirection is positive when the face turns toward +x.
func facingDirection(f *detector.FaceLandmarks) float64 {
	mid := (f.Points[detector.FaceLeft].X + f.Points[detector.FaceRight].X) / 2
	return f.Nose().X - mid
}

// Distance is the Euclidean distance between two normalized points, clamped to [0,1].
func Distance(p, q detector.Point) float64 {
	return clamp01(euclidean(p, q))
}

// FaceDistance is the distance between the nose tips of exactly two faces.
func FaceDistance(faces []detector.FaceLandmarks) float64 {
	if len(faces) != 2 {
		return Unknown
	}
	return Distance(faces[0].Nose(), faces[1].Nose())
}

// HandDistance returns the smallest palm-center distance over every pair of
// hands, or Unknown with fewer than two hands.
func HandDistance(hands []detector.HandLandmarks) float64 {
	if len(hands) < 2 {
		return Unknown
	}

	best := math.Inf(1)
	for i := 0; i < len(hands); i++ {
		for j := i + 1; j < len(hands); j++ {
			if d := euclidean(hands[i].Palm(), hands[j].Palm()); d < best {
				best = d
			}
		}
	}

	return clamp01(best)
}

// HandsTouching reports whether a hand distance counts as touching.
// The Unknown sentinel is never touching.
func HandsTouching(distance float64) bool {
	return distance < TouchDistance
}

func euclidean(p, q detector.Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
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
