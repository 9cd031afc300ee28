package types

import "time"

// Frame is a captured BGR image. Frames are never modified after they are
// published by a frame source.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Channels  int
	Data      []byte
}

type Hand int

const (
	Left Hand = iota
	Right
)

// Hands lists every tracked hand in emission order.
var Hands = [...]Hand{Left, Right}

func (h Hand) String() string {
	switch h {
	case Left:
		return "left_hand"
	case Right:
		return "right_hand"
	default:
		return "unknown_hand"
	}
}

type Landmark struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// HandLandmarks holds the raw detector points of one hand in detector order.
type HandLandmarks struct {
	Points []Landmark
}

// Detection is the detector output for one frame. A nil entry means the hand
// was not visible.
type Detection struct {
	Hands [len(Hands)]*HandLandmarks
}

func (d Detection) Visible(h Hand) bool {
	return d.Hands[h] != nil
}
