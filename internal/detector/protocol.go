package detector

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

// Request sent to the sidecar for every frame:
//
//	{ "type": "frame", "seq": <uint>, "channels": <int>,
//	  "min_detection_confidence": <float>, "min_tracking_confidence": <float>,
//	  "image": tag40([height, width*channels], tag64(bgr bytes)) }
//
// Reply:
//
//	{ "type": "landmarks", "seq": <uint>,
//	  "left_hand": tag40([21, 3], tag85(float32 LE)) | null,
//	  "right_hand": ... ,
//	  "error": <string, optional> }
func encodeRequest(frame *types.Frame, cfg Config) ([]byte, error) {
	channels := frame.Channels
	if channels < 1 {
		channels = 3
	}
	payload := map[string]any{
		"type":                     "frame",
		"seq":                      frame.Seq,
		"channels":                 channels,
		"min_detection_confidence": cfg.MinDetectionConfidence,
		"min_tracking_confidence":  cfg.MinTrackingConfidence,
		"image":                    encodeImage(frame.Data, frame.Height, frame.Width*channels),
	}
	return cbor.Marshal(payload)
}

func decodeReply(msg []byte, names []string) (types.Detection, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.Detection{}, fmt.Errorf("decode reply: %w", err)
	}
	if msgType, _ := payload["type"].(string); msgType != "landmarks" {
		return types.Detection{}, fmt.Errorf("unexpected reply type %q", msgType)
	}
	if reason, ok := payload["error"].(string); ok && reason != "" {
		return types.Detection{}, fmt.Errorf("detector: %s", reason)
	}

	var det types.Detection
	for _, hand := range types.Hands {
		raw, ok := payload[hand.String()]
		if !ok || raw == nil {
			continue
		}
		rows, err := decodeFloat32Matrix(raw)
		if err != nil {
			return types.Detection{}, fmt.Errorf("%s: %w", hand, err)
		}
		points := make([]types.Landmark, 0, len(rows))
		for i, row := range rows {
			if len(row) < 3 {
				return types.Detection{}, fmt.Errorf("%s: landmark %d has %d coordinates", hand, i, len(row))
			}
			name := ""
			if i < len(names) {
				name = names[i]
			}
			points = append(points, types.Landmark{Name: name, X: float64(row[0]), Y: float64(row[1]), Z: float64(row[2])})
		}
		det.Hands[hand] = &types.HandLandmarks{Points: points}
	}
	return det, nil
}

// encodeReply builds a reply the way the sidecar does. It is used by the
// simulated sidecar in tests.
func encodeReply(seq uint64, det types.Detection) ([]byte, error) {
	payload := map[string]any{
		"type": "landmarks",
		"seq":  seq,
	}
	for _, hand := range types.Hands {
		h := det.Hands[hand]
		if h == nil {
			payload[hand.String()] = nil
			continue
		}
		values := make([]float32, 0, len(h.Points)*3)
		for _, p := range h.Points {
			values = append(values, float32(p.X), float32(p.Y), float32(p.Z))
		}
		payload[hand.String()] = encodeFloat32Matrix(values, len(h.Points), 3)
	}
	return cbor.Marshal(payload)
}
