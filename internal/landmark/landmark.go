// Package landmark holds the per-frame landmark snapshots that an external
// vision model streams into focusflow. Coordinates are normalized to [0,1]
// relative to the frame; indices follow the MediaPipe face mesh and hand
// landmark schemes.
package landmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Face mesh indices read by the engine.
const (
	NoseTip       = 1
	LeftEyeInner  = 133
	RightEyeInner = 362
	LeftEyeUpper  = 159
	LeftEyeLower  = 145
	RightEyeUpper = 386
	RightEyeLower = 374
)

// Hand landmark indices read by the engine.
const (
	ThumbTip = 4
	IndexTip = 8

	NumHandLandmarks = 21
)

// MaxPoints bounds the size of a single snapshot. The refined face mesh has
// 478 points; anything far beyond that is not a landmark frame.
const MaxPoints = 1024

// FaceIndices lists every face index the engine needs in face mode.
var FaceIndices = []int{
	NoseTip,
	LeftEyeInner, RightEyeInner,
	LeftEyeUpper, LeftEyeLower,
	RightEyeUpper, RightEyeLower,
}

// HandIndices lists every hand index the engine needs in gesture mode.
var HandIndices = []int{ThumbTip, IndexTip}

// UpdateType is the message type landmark providers send.
const UpdateType = "pose_update"

var (
	ErrUnknownMessage = errors.New("unknown landmark message type")
	ErrTooManyPoints  = errors.New("too many landmark points")
	ErrNonFinite      = errors.New("non-finite landmark coordinate")
)

// Point is one landmark in normalized frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Face is one face mesh together with the pixel size of the frame it came
// from. Pixel size is needed for the distance heuristic.
type Face struct {
	Points      []Point `json:"points"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
}

// Point returns the landmark at index i.
func (f *Face) Point(i int) (Point, bool) {
	if f == nil || i < 0 || i >= len(f.Points) {
		return Point{}, false
	}
	return f.Points[i], true
}

// Missing returns the first index from indices that the face does not carry.
func (f *Face) Missing(indices ...int) (int, bool) {
	for _, i := range indices {
		if _, ok := f.Point(i); !ok {
			return i, true
		}
	}
	return 0, false
}

// Bounds returns the bounding box of all points in normalized coordinates.
func (f *Face) Bounds() (minX, minY, maxX, maxY float64) {
	if f == nil || len(f.Points) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range f.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// Hand is one detected hand.
type Hand struct {
	Points     []Point `json:"points"`
	Handedness string  `json:"handedness,omitempty"` // "Left" or "Right"
	Score      float64 `json:"score,omitempty"`
}

// Point returns the landmark at index i.
func (h *Hand) Point(i int) (Point, bool) {
	if h == nil || i < 0 || i >= len(h.Points) {
		return Point{}, false
	}
	return h.Points[i], true
}

// Missing returns the first index from indices that the hand does not carry.
func (h *Hand) Missing(indices ...int) (int, bool) {
	for _, i := range indices {
		if _, ok := h.Point(i); !ok {
			return i, true
		}
	}
	return 0, false
}

// Snapshot is what one tick evaluates. Face and hand are mutually exclusive
// in practice; the engine only reads the one matching its input mode.
type Snapshot struct {
	Face *Face `json:"face,omitempty"`
	Hand *Hand `json:"hand,omitempty"`
}

// Update is the wire message sent by a landmark provider.
type Update struct {
	Type       string  `json:"type"`
	Sequence   uint64  `json:"seq,omitempty"`
	CapturedAt float64 `json:"captured_at,omitempty"` // provider clock, informational only
	Snapshot
}

// DecodeUpdate parses and sanity-checks one provider message.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("failed to parse landmark update: %w", err)
	}
	if u.Type != "" && u.Type != UpdateType {
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownMessage, u.Type)
	}
	if u.Face != nil {
		if err := checkPoints(u.Face.Points); err != nil {
			return Update{}, fmt.Errorf("face: %w", err)
		}
	}
	if u.Hand != nil {
		if err := checkPoints(u.Hand.Points); err != nil {
			return Update{}, fmt.Errorf("hand: %w", err)
		}
	}
	return u, nil
}

func checkPoints(points []Point) error {
	if len(points) > MaxPoints {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPoints, len(points), MaxPoints)
	}
	for i, p := range points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
