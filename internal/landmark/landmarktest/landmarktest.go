// Package landmarktest builds synthetic landmark snapshots for tests.
package landmarktest

import "github.com/tiroq/focusflow/internal/landmark"

// Mesh size of the refined MediaPipe face mesh.
const meshSize = 478

// Spare mesh indices used to pin the face bounding box (forehead, chin).
const (
	boxTopIndex    = 10
	boxBottomIndex = 152
)

// FaceSpec describes a synthetic face by the handful of points the engine
// reads. Every other mesh point collapses onto the nose tip, so the
// bounding box is set by BoxMin/BoxMax.
type FaceSpec struct {
	Width, Height int

	Nose     landmark.Point
	LeftEye  landmark.Point // inner corner
	RightEye landmark.Point // inner corner

	LeftGap  float64 // vertical eyelid gap
	RightGap float64

	BoxMin landmark.Point
	BoxMax landmark.Point
}

// Frontal is a face looking straight at a 640x480 camera from a comfortable
// distance. Normalized distance is ~5.6e-5 and the eyelid gap is 0.03.
func Frontal() FaceSpec {
	return FaceSpec{
		Width:    640,
		Height:   480,
		Nose:     landmark.Point{X: 0.50, Y: 0.48},
		LeftEye:  landmark.Point{X: 0.47, Y: 0.40},
		RightEye: landmark.Point{X: 0.53, Y: 0.40},
		LeftGap:  0.03,
		RightGap: 0.03,
		BoxMin:   landmark.Point{X: 0.35, Y: 0.25},
		BoxMax:   landmark.Point{X: 0.65, Y: 0.70},
	}
}

// Close moves the inner eye corners apart so the distance heuristic reads
// ~3.9e-4, well above the default close threshold.
func (s FaceSpec) Close() FaceSpec {
	s.LeftEye.X = 0.42
	s.RightEye.X = 0.58
	return s
}

// TurnedAway shifts the nose sideways past the default side-look threshold.
func (s FaceSpec) TurnedAway() FaceSpec {
	s.Nose.X += 0.05
	return s
}

// EyesClosed sets both eyelid gaps to gap.
func (s FaceSpec) EyesClosed(gap float64) FaceSpec {
	s.LeftGap = gap
	s.RightGap = gap
	return s
}

// Tilted drops the right eye by dy.
func (s FaceSpec) Tilted(dy float64) FaceSpec {
	s.RightEye.Y += dy
	return s
}

// Build renders the spec into a full face mesh.
func (s FaceSpec) Build() *landmark.Face {
	points := make([]landmark.Point, meshSize)
	for i := range points {
		points[i] = s.Nose
	}
	points[landmark.NoseTip] = s.Nose
	points[landmark.LeftEyeInner] = s.LeftEye
	points[landmark.RightEyeInner] = s.RightEye
	points[landmark.LeftEyeUpper] = landmark.Point{X: s.LeftEye.X - 0.02, Y: s.LeftEye.Y - s.LeftGap/2}
	points[landmark.LeftEyeLower] = landmark.Point{X: s.LeftEye.X - 0.02, Y: s.LeftEye.Y + s.LeftGap/2}
	points[landmark.RightEyeUpper] = landmark.Point{X: s.RightEye.X + 0.02, Y: s.RightEye.Y - s.RightGap/2}
	points[landmark.RightEyeLower] = landmark.Point{X: s.RightEye.X + 0.02, Y: s.RightEye.Y + s.RightGap/2}
	points[boxTopIndex] = s.BoxMin
	points[boxBottomIndex] = s.BoxMax
	return &landmark.Face{Points: points, FrameWidth: s.Width, FrameHeight: s.Height}
}

// Snapshot wraps Build in a face-mode snapshot.
func (s FaceSpec) Snapshot() landmark.Snapshot {
	return landmark.Snapshot{Face: s.Build()}
}

// Hand returns a hand whose thumb and index tips are pinch apart.
func Hand(pinch float64) *landmark.Hand {
	points := make([]landmark.Point, landmark.NumHandLandmarks)
	for i := range points {
		points[i] = landmark.Point{X: 0.5, Y: 0.6}
	}
	points[landmark.ThumbTip] = landmark.Point{X: 0.5, Y: 0.5}
	points[landmark.IndexTip] = landmark.Point{X: 0.5 + pinch, Y: 0.5}
	return &landmark.Hand{Points: points, Handedness: "Right", Score: 0.9}
}

// HandSnapshot wraps Hand in a gesture-mode snapshot.
func HandSnapshot(pinch float64) landmark.Snapshot {
	return landmark.Snapshot{Hand: Hand(pinch)}
}
