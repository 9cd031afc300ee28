package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/config"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/framesource"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/normalize"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/record"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/telemetry"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type countingDetector struct {
	mu   sync.Mutex
	seqs map[uint64]int
}

func (d *countingDetector) Detect(_ context.Context, frame *types.Frame) (types.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seqs[frame.Seq]++
	return types.Detection{}, nil
}

func (d *countingDetector) Close() error { return nil }

type discardSender struct{}

func (discardSender) Send(string, ...any) error { return nil }

func TestLoopProcessesEachFrameOnce(t *testing.T) {
	capture := framesource.NewSynthetic(framesource.SyntheticConfig{Width: 2, Height: 2, FPS: 50, Length: 10})
	source, err := framesource.New(capture, framesource.DefaultOptions())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer source.Stop()

	normalizer, err := normalize.New(normalize.DefaultTables())
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	det := &countingDetector{seqs: map[uint64]int{}}
	publisher := telemetry.NewPublisher(discardSender{}, normalizer)
	var recorder record.Recorder
	var m metrics

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	cfg := config.Default()
	cfg.LogEvery = 0
	loop(ctx, cfg, source, det, publisher, &recorder, discardSender{}, &m)

	det.mu.Lock()
	defer det.mu.Unlock()
	for seq, n := range det.seqs {
		if n != 1 {
			t.Fatalf("frame %d detected %d times", seq, n)
		}
	}
	// About 15 frames are captured at 50 fps in 300 ms.
	if got := m.framesProcessed.Load(); got < 5 || got != uint64(len(det.seqs)) {
		t.Fatalf("processed %d frames, %d distinct", got, len(det.seqs))
	}
}
