// Package normalize maps raw detector coordinates into the ranges the OSC
// listener expects.
package normalize

import (
	"fmt"
	"math"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type Range struct {
	From float64
	To   float64
}

var (
	mirrorSource = Range{From: 1, To: 0}
	unitRange    = Range{From: 0, To: 1}
	depthSource  = Range{From: 0, To: -1}
)

// ScaleToRange remaps v affinely from source onto target. Values outside the
// source range are not clamped.
func ScaleToRange(v float64, source, target Range) float64 {
	return (v-source.From)*(target.To-target.From)/(source.To-source.From) + target.From
}

// MagnitudeScale returns the number of zeros between the decimal point and the
// first significant digit of |d|. ok is false for zero, which has no finite scale.
func MagnitudeScale(d float64) (zeros int, ok bool) {
	if d == 0 {
		return 0, false
	}
	return -int(math.Floor(math.Log10(math.Abs(d)))) - 1, true
}

// Rescale multiplies d by 10^MagnitudeScale(d). Zero stays zero.
func Rescale(d float64) float64 {
	zeros, ok := MagnitudeScale(d)
	if !ok {
		return 0
	}
	return d * math.Pow(10, float64(zeros))
}

// Tables is the landmark naming the normalizer works with. Names is the full
// detector ordering, Render the allow-list forwarded downstream and Root the
// depth anchor.
type Tables struct {
	Names  []string
	Render []string
	Root   string
}

func DefaultTables() Tables {
	return Tables{
		Names: []string{
			"wrist", "thumb_cmc", "thumb_mcp", "thumb_ip", "thumb_tip",
			"index_finger_mcp", "index_finger_pip", "index_finger_dip", "index_finger_tip",
			"middle_finger_mcp", "middle_finger_pip", "middle_finger_dip", "middle_finger_tip",
			"ring_finger_mcp", "ring_finger_pip", "ring_finger_dip", "ring_finger_tip",
			"pinky_mcp", "pinky_pip", "pinky_dip", "pinky_tip",
		},
		Render: []string{"wrist", "thumb_tip", "index_finger_tip", "middle_finger_tip", "ring_finger_tip", "pinky_tip"},
		Root:   "wrist",
	}
}

type Normalizer struct {
	names  []string
	render map[string]bool
	root   string
}

func New(tables Tables) (*Normalizer, error) {
	if len(tables.Names) == 0 {
		return nil, fmt.Errorf("landmark table is empty")
	}
	known := make(map[string]bool, len(tables.Names))
	for _, name := range tables.Names {
		known[name] = true
	}
	render := make(map[string]bool, len(tables.Render))
	for _, name := range tables.Render {
		if !known[name] {
			return nil, fmt.Errorf("render landmark %q is not a known landmark", name)
		}
		render[name] = true
	}
	if !known[tables.Root] {
		return nil, fmt.Errorf("root landmark %q is not a known landmark", tables.Root)
	}
	return &Normalizer{
		names:  append([]string(nil), tables.Names...),
		render: render,
		root:   tables.Root,
	}, nil
}

// Names returns the full landmark ordering.
func (n *Normalizer) Names() []string {
	return append([]string(nil), n.names...)
}

func (n *Normalizer) Rendered(name string) bool {
	return n.render[name]
}

// Landmark normalizes one raw detector point.
func (n *Normalizer) Landmark(name string, x, y, z float64) types.Landmark {
	zn := Rescale(z)
	if name != n.root {
		zn = ScaleToRange(zn, depthSource, unitRange)
	}
	return types.Landmark{
		Name: name,
		X:    ScaleToRange(x, mirrorSource, unitRange),
		Y:    y,
		Z:    zn,
	}
}

// Hand normalizes the allow-listed points of one hand, in table order. Points
// are matched to names by position; missing trailing points are skipped.
func (n *Normalizer) Hand(hand *types.HandLandmarks) []types.Landmark {
	if hand == nil {
		return nil
	}
	out := make([]types.Landmark, 0, len(n.render))
	for i, name := range n.names {
		if !n.render[name] {
			continue
		}
		if i >= len(hand.Points) {
			break
		}
		p := hand.Points[i]
		out = append(out, n.Landmark(name, p.X, p.Y, p.Z))
	}
	return out
}
