package detector

import (
	"context"
	"math"
	"math/rand"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

// Simulated produces plausible moving hands without a model. The left hand
// circles the image centre; the right hand appears and disappears
// periodically.
type Simulated struct {
	names []string
	rng   *rand.Rand
	frame int
}

func NewSimulated(names []string, seed int64) *Simulated {
	return &Simulated{
		names: append([]string(nil), names...),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) Detect(ctx context.Context, _ *types.Frame) (types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return types.Detection{}, err
	}
	s.frame++
	phase := float64(s.frame) / 30

	var det types.Detection
	det.Hands[types.Left] = s.hand(0.35+0.15*math.Cos(phase), 0.5+0.15*math.Sin(phase))
	if s.frame%90 < 60 {
		det.Hands[types.Right] = s.hand(0.7, 0.5+0.1*math.Sin(phase*2))
	}
	return det, nil
}

func (s *Simulated) hand(cx, cy float64) *types.HandLandmarks {
	points := make([]types.Landmark, len(s.names))
	for i, name := range s.names {
		angle := float64(i) / float64(len(s.names)) * math.Pi
		reach := 0.02 + 0.005*float64(i%4+1)
		z := -0.01 - 0.04*s.rng.Float64()
		if i == 0 {
			// The root point carries a tiny depth, as real models report.
			z = 1e-7 * (1 + s.rng.Float64())
		}
		points[i] = types.Landmark{
			Name: name,
			X:    clamp01(cx + reach*math.Cos(angle) + 0.002*s.rng.NormFloat64()),
			Y:    clamp01(cy - reach*math.Sin(angle) + 0.002*s.rng.NormFloat64()),
			Z:    z,
		}
	}
	return &types.HandLandmarks{Points: points}
}

func (s *Simulated) Close() error {
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
