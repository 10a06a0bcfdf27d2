// Package landmark defines the body landmark space and projects normalized
// detector output into pixel coordinates.
package landmark

import (
	"image"
	"math"
)

// Name identifies one body landmark. Values follow the MediaPipe Pose index
// order so a detector can report landmarks positionally.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
type Name int

const (
	Nose Name = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// NumLandmarks is the size of the landmark space.
	NumLandmarks = 33
)

// VisibilityThreshold is the minimum visibility for a landmark to be drawn.
// It is independent of the detector's own confidence thresholds.
const VisibilityThreshold = 0.5

var names = [NumLandmarks]string{
	"NOSE",
	"LEFT_EYE_INNER",
	"LEFT_EYE",
	"LEFT_EYE_OUTER",
	"RIGHT_EYE_INNER",
	"RIGHT_EYE",
	"RIGHT_EYE_OUTER",
	"LEFT_EAR",
	"RIGHT_EAR",
	"MOUTH_LEFT",
	"MOUTH_RIGHT",
	"LEFT_SHOULDER",
	"RIGHT_SHOULDER",
	"LEFT_ELBOW",
	"RIGHT_ELBOW",
	"LEFT_WRIST",
	"RIGHT_WRIST",
	"LEFT_PINKY",
	"RIGHT_PINKY",
	"LEFT_INDEX",
	"RIGHT_INDEX",
	"LEFT_THUMB",
	"RIGHT_THUMB",
	"LEFT_HIP",
	"RIGHT_HIP",
	"LEFT_KNEE",
	"RIGHT_KNEE",
	"LEFT_ANKLE",
	"RIGHT_ANKLE",
	"LEFT_HEEL",
	"RIGHT_HEEL",
	"LEFT_FOOT_INDEX",
	"RIGHT_FOOT_INDEX",
}

// Valid reports whether n is inside the landmark space.
func (n Name) Valid() bool {
	return n >= 0 && n < NumLandmarks
}

// String returns the upper-snake landmark name, e.g. LEFT_SHOULDER.
func (n Name) String() string {
	if !n.Valid() {
		return "UNKNOWN"
	}
	return names[n]
}

// ParseName resolves an upper-snake landmark name.
func ParseName(s string) (Name, bool) {
	for i, name := range names {
		if name == s {
			return Name(i), true
		}
	}
	return 0, false
}

// All returns every landmark name in index order.
func All() []Name {
	all := make([]Name, NumLandmarks)
	for i := range all {
		all[i] = Name(i)
	}
	return all
}

// Normalized is one landmark as reported by the detector: X and Y are
// fractions of the frame width and height, Visibility is in [0,1].
type Normalized struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Raw is one frame of detector output. A nil Raw means no body was detected.
type Raw map[Name]Normalized

// Set maps visible landmarks to pixel positions for one frame.
// Positions may lie outside the frame when the detector extrapolates
// clipped joints.
type Set map[Name]image.Point

// Has reports whether every given landmark is present.
func (s Set) Has(names ...Name) bool {
	for _, n := range names {
		if _, ok := s[n]; !ok {
			return false
		}
	}
	return true
}

// Project converts normalized landmarks into pixel coordinates for a frame of
// the given size, keeping only landmarks with visibility >= VisibilityThreshold.
// Landmarks with non-finite coordinates or visibility are dropped. The result
// is never nil.
func Project(raw Raw, width, height int) Set {
	set := make(Set, len(raw))

	for name, lm := range raw {
		if !name.Valid() {
			continue
		}
		if !(lm.Visibility >= VisibilityThreshold) {
			continue
		}

		x, okX := pixel(lm.X, width)
		y, okY := pixel(lm.Y, height)
		if !okX || !okY {
			continue
		}
		set[name] = image.Pt(x, y)
	}

	return set
}

// maxPixel bounds projected coordinates so the int conversion is defined.
const maxPixel = 1 << 30

// pixel scales a normalized coordinate. Non-finite or absurdly large
// results are rejected.
func pixel(v float64, size int) (int, bool) {
	p := math.Round(v * float64(size))
	if math.IsNaN(p) || math.Abs(p) > maxPixel {
		return 0, false
	}
	return int(p), true
}
