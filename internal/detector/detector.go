// Package detector is the boundary to the hand landmark model. The model
// itself runs outside this process; implementations here either talk to it
// or simulate it.
package detector

import (
	"context"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type Detector interface {
	// Detect returns the landmarks found in frame. Hands that are not visible
	// are nil in the returned Detection.
	Detect(ctx context.Context, frame *types.Frame) (types.Detection, error)
	Close() error
}

type Config struct {
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
}

func DefaultConfig() Config {
	return Config{
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}
