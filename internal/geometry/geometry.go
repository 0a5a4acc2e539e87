// Package geometry turns a face landmark snapshot into the scalar
// measurements the attention engine classifies. Everything here is a pure
// function of its input.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/tiroq/focusflow/internal/landmark"
)

// epsilon below which a denominator is treated as zero.
const epsilon = 1e-9

var (
	// ErrMissingLandmark is returned when a required index is absent.
	ErrMissingLandmark = errors.New("missing landmark")
	// ErrInvalidFrame is returned when the frame size is not positive.
	ErrInvalidFrame = errors.New("invalid frame size")
	// ErrDivisionUndefined is returned by HeadTiltRatio when both inner eye
	// corners share an x-coordinate.
	ErrDivisionUndefined = errors.New("head tilt undefined: eyes share x-coordinate")
)

// Measurements are the per-frame scalars derived from one face.
type Measurements struct {
	LeftEyeGap  float64 `json:"left_eye_gap"`
	RightEyeGap float64 `json:"right_eye_gap"`
	EAR         float64 `json:"ear"` // mean eyelid gap, an openness proxy

	HeadTilt          float64 `json:"head_tilt"`
	HeadTiltAvailable bool    `json:"head_tilt_available"`

	NormHTilt        float64 `json:"norm_h_tilt"`
	NormVTilt        float64 `json:"norm_v_tilt"`
	NoseDisplacement float64 `json:"nose_displacement"`

	InterEyePixels     float64 `json:"inter_eye_pixels"`
	FaceBoxArea        float64 `json:"face_box_area"` // pixels²
	NormalizedDistance float64 `json:"normalized_distance"`
	DistanceAvailable  bool    `json:"distance_available"`
}

// Extract computes Measurements for a face. It fails only when the face
// cannot be measured at all (missing indices or a bad frame size); a
// degenerate head tilt or bounding box only marks that signal unavailable.
func Extract(face *landmark.Face) (Measurements, error) {
	if face == nil {
		return Measurements{}, fmt.Errorf("%w: no face", ErrMissingLandmark)
	}
	if idx, missing := face.Missing(landmark.FaceIndices...); missing {
		return Measurements{}, fmt.Errorf("%w: index %d", ErrMissingLandmark, idx)
	}
	if face.FrameWidth <= 0 || face.FrameHeight <= 0 {
		return Measurements{}, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, face.FrameWidth, face.FrameHeight)
	}

	nose, _ := face.Point(landmark.NoseTip)
	left, _ := face.Point(landmark.LeftEyeInner)
	right, _ := face.Point(landmark.RightEyeInner)
	leftUp, _ := face.Point(landmark.LeftEyeUpper)
	leftLow, _ := face.Point(landmark.LeftEyeLower)
	rightUp, _ := face.Point(landmark.RightEyeUpper)
	rightLow, _ := face.Point(landmark.RightEyeLower)

	w := float64(face.FrameWidth)
	h := float64(face.FrameHeight)

	var m Measurements
	m.LeftEyeGap = math.Abs(leftUp.Y - leftLow.Y)
	m.RightEyeGap = math.Abs(rightUp.Y - rightLow.Y)
	m.EAR = (m.LeftEyeGap + m.RightEyeGap) / 2

	if tilt, err := HeadTiltRatio(left, right); err == nil {
		m.HeadTilt = tilt
		m.HeadTiltAvailable = true
	}

	// Pixel offsets divided by the frame size reduce to plain deltas in
	// normalized coordinates.
	midX := (left.X + right.X) / 2
	midY := (left.Y + right.Y) / 2
	m.NormHTilt = midX - nose.X
	m.NormVTilt = midY - nose.Y
	m.NoseDisplacement = nose.X - midX

	m.InterEyePixels = math.Hypot((right.X-left.X)*w, (right.Y-left.Y)*h)
	minX, minY, maxX, maxY := face.Bounds()
	m.FaceBoxArea = ((maxX - minX) * w) * ((maxY - minY) * h)
	if dist, ok := NormalizedDistance(m.InterEyePixels, m.FaceBoxArea, w); ok {
		m.NormalizedDistance = dist
		m.DistanceAvailable = true
	}

	return m, nil
}

// HeadTiltRatio is |Δy/Δx| between the inner eye corners.
func HeadTiltRatio(left, right landmark.Point) (float64, error) {
	dx := right.X - left.X
	if math.Abs(dx) < epsilon {
		return 0, ErrDivisionUndefined
	}
	return math.Abs((left.Y - right.Y) / dx), nil
}

// NormalizedDistance is the viewing-distance heuristic
// (interEye² / faceArea) / frameWidth. It is a unitless proxy that grows as
// the face approaches the camera, not a metric distance.
func NormalizedDistance(interEyePixels, faceArea, frameWidth float64) (float64, bool) {
	if faceArea < epsilon || frameWidth < epsilon {
		return 0, false
	}
	return (interEyePixels * interEyePixels / faceArea) / frameWidth, true
}

// PinchDistance is the Euclidean thumb-to-index distance in normalized x/y.
func PinchDistance(hand *landmark.Hand) (float64, error) {
	if idx, missing := hand.Missing(landmark.HandIndices...); missing {
		return 0, fmt.Errorf("%w: index %d", ErrMissingLandmark, idx)
	}
	thumb, _ := hand.Point(landmark.ThumbTip)
	index, _ := hand.Point(landmark.IndexTip)
	return math.Hypot(thumb.X-index.X, thumb.Y-index.Y), nil
}
