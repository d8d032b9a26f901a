// Package detector provides the landmark provider contract: face and hand
// landmark sets produced once per captured frame.
package detector

// Face landmark indices following the MediaPipe face mesh convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	NoseTip       = 1
	UpperLip      = 13
	LowerLip      = 14
	MouthLeft     = 61
	LeftEyeInner  = 133
	FaceLeft      = 234
	MouthRight    = 291
	RightEyeInner = 362
	FaceRight     = 454

	// NumFaceLandmarks is the face mesh size with refined iris landmarks.
	NumFaceLandmarks = 478
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist     = 0
	ThumbTip  = 4
	IndexMCP  = 5
	IndexTip  = 8
	MiddleMCP = 9
	MiddleTip = 12
	RingMCP   = 13
	PinkyMCP  = 17
	PinkyTip  = 20

	// PalmCenter is the landmark used as the hand's position.
	PalmCenter = MiddleMCP

	NumHandLandmarks = 21
)

// Point is a landmark coordinate normalized to the frame width and height.
// Values may fall slightly outside [0,1] because of detector noise.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceLandmarks is one detected face mesh.
type FaceLandmarks struct {
	Points [NumFaceLandmarks]Point `json:"points"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumHandLandmarks]Point `json:"points"`
	Handedness string                  `json:"handedness"` // "Left" or "Right"
	Score      float64                 `json:"score"`
}

// Palm returns the palm-center point.
func (h *HandLandmarks) Palm() Point {
	return h.Points[PalmCenter]
}

// Nose returns the nose-tip point.
func (f *FaceLandmarks) Nose() Point {
	return f.Points[NoseTip]
}

// Frame is everything the provider saw in one captured frame.
type Frame struct {
	Faces []FaceLandmarks `json:"faces"`
	Hands []HandLandmarks `json:"hands"`
}
