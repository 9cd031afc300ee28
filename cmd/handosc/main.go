package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/config"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/detector"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/framesource"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/handshake"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/mqttsink"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/normalize"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/osc"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/output"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/record"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/server"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/telemetry"
)

const (
	idlePoll        = 2 * time.Millisecond
	shutdownTimeout = 2 * time.Second
)

type metrics struct {
	framesProcessed atomic.Uint64
	duplicateReads  atomic.Uint64
	detectErrors    atomic.Uint64
	detectCount     atomic.Uint64
	detectNanos     atomic.Uint64
	recordErrors    atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_processed_total": m.framesProcessed.Load(),
		"duplicate_reads_total":  m.duplicateReads.Load(),
		"detect_err_total":       m.detectErrors.Load(),
		"detect_total":           m.detectCount.Load(),
		"detect_nanos_total":     m.detectNanos.Load(),
		"record_err_total":       m.recordErrors.Load(),
	}
}

func main() {
	cfg := config.Default()
	if path := configPath(os.Args[1:]); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	bindFlags(flag.CommandLine, &cfg)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	normalizer, err := normalize.New(normalize.DefaultTables())
	if err != nil {
		log.Fatalf("landmark tables: %v", err)
	}

	channel, err := osc.Open(osc.Config{Host: cfg.Host, SendPort: cfg.SendPort, ListenPort: cfg.ListenPort})
	if err != nil {
		log.Fatalf("open OSC channel: %v", err)
	}
	log.Printf("OSC: sending to %s:%d, listening on %s", cfg.Host, cfg.SendPort, channel.Server().Addr())

	var rawLog *output.RawLogWriter
	if cfg.RawLog {
		rawLog, err = output.NewRawLogWriter(cfg.OutputDir, "osc")
		if err != nil {
			_ = channel.Close()
			log.Fatalf("failed to start raw log: %v", err)
		}
		channel.SetRecorder(rawLog)
		log.Printf("raw log: %s (run %s)", rawLog.Path(), rawLog.RunID())
	}

	handshakeState := handshake.Idle
	if cfg.SkipHandshake {
		log.Printf("handshake skipped")
	} else {
		result := handshake.Run(ctx, channel, handshake.Config{PeerPort: cfg.SendPort, Timeout: cfg.HandshakeTimeout})
		handshakeState = result.State
		if err := result.Err(); err != nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				log.Printf("handshake: %s", line)
			}
			closeRawLog(channel, rawLog)
			_ = channel.Close()
			os.Exit(1)
		}
		log.Printf("handshake: peer confirmed on port %d", cfg.SendPort)
	}

	capture, err := openCapture(cfg)
	if err != nil {
		closeRawLog(channel, rawLog)
		_ = channel.Close()
		log.Fatalf("open video source: %v", err)
	}
	source, err := framesource.New(capture, framesource.DefaultOptions())
	if err != nil {
		closeRawLog(channel, rawLog)
		_ = channel.Close()
		log.Fatalf("start video source: %v", err)
	}

	var det detector.Detector
	if cfg.Debug {
		det = detector.NewSimulated(normalizer.Names(), time.Now().UnixNano())
	} else {
		det, err = detector.NewRemote(cfg.DetectorEndpoint, detector.Config{
			MinDetectionConfidence: cfg.MinDetectionConfidence,
			MinTrackingConfidence:  cfg.MinTrackingConfidence,
		}, normalizer.Names(), cfg.DetectorTimeout)
		if err != nil {
			source.Stop()
			closeRawLog(channel, rawLog)
			_ = channel.Close()
			log.Fatalf("connect detector: %v", err)
		}
	}

	var recorder record.Recorder
	if cfg.Record {
		recorder.Start()
	}

	var mirrors []telemetry.Mirror
	var uiMessages chan any
	if cfg.Port > 0 {
		uiMessages = make(chan any, 16)
		mirrors = append(mirrors, telemetry.ChanMirror(uiMessages))
	}
	var sink *mqttsink.Sink
	if cfg.MQTTBroker != "" {
		sink, err = mqttsink.Dial(cfg.MQTTBroker, cfg.MQTTTopic)
		if err != nil {
			log.Printf("mqtt mirror disabled: %v", err)
		} else {
			mirrors = append(mirrors, sink)
		}
	}
	publisher := telemetry.NewPublisher(channel, normalizer, mirrors...)

	var m metrics
	status := func() map[string]any {
		merged := m.snapshot()
		for _, part := range []map[string]any{publisher.Snapshot(), channel.Stats()} {
			for k, v := range part {
				merged[k] = v
			}
		}
		if sink != nil {
			for k, v := range sink.Stats() {
				merged[k] = v
			}
		}
		return map[string]any{
			"metrics":   merged,
			"source":    source.Stats(),
			"handshake": handshakeState.String(),
			"recording": recorder.Recording(),
		}
	}

	serverDone := make(chan struct{})
	serverCtx, cancelServer := context.WithCancel(context.Background())
	if uiMessages != nil {
		log.Printf("Starting live view at http://localhost:%d", cfg.Port)
		go func() {
			defer close(serverDone)
			err := server.Run(serverCtx, cfg, uiMessages, server.Hooks{
				Status: status,
				Snapshot: func() any {
					if latest := publisher.Latest(); latest != nil {
						return latest
					}
					return nil
				},
				ToggleRecord: recorder.Toggle,
			})
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("live view stopped: %v", err)
			}
		}()
	} else {
		close(serverDone)
	}

	if err := source.Start(); err != nil {
		log.Fatalf("start capture: %v", err)
	}

	started := time.Now()
	loop(ctx, cfg, source, det, publisher, &recorder, channel, &m)
	elapsed := time.Since(started)

	source.Stop()
	select {
	case <-source.Done():
	case <-time.After(shutdownTimeout):
		log.Printf("capture did not stop within %s", shutdownTimeout)
	}
	cancelServer()
	<-serverDone
	if sink != nil {
		_ = sink.Close()
	}
	if err := det.Close(); err != nil {
		log.Printf("detector close: %v", err)
	}
	closeRawLog(channel, rawLog)
	if err := channel.Close(); err != nil {
		log.Printf("OSC channel close: %v", err)
	}

	frames := m.framesProcessed.Load()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(frames) / elapsed.Seconds()
	}
	log.Printf("FPS: %.2f, elapsed: %s, frames processed: %d", fps, elapsed.Round(time.Millisecond), frames)
}

func loop(
	ctx context.Context,
	cfg config.AppConfig,
	source *framesource.Source,
	det detector.Detector,
	publisher *telemetry.Publisher,
	recorder *record.Recorder,
	sender record.Sender,
	m *metrics,
) {
	detectLog := rate.Sometimes{First: 1, Interval: 5 * time.Second}
	recordLog := rate.Sometimes{First: 1, Interval: 5 * time.Second}
	var lastSeq uint64
	seen := false

	for ctx.Err() == nil && !source.Stopped() {
		frame := source.Read()
		if frame == nil || (seen && frame.Seq == lastSeq) {
			m.duplicateReads.Add(1)
			if !sleep(ctx, idlePoll) {
				return
			}
			continue
		}
		lastSeq, seen = frame.Seq, true

		detectStart := time.Now()
		detection, err := det.Detect(ctx, frame)
		m.detectCount.Add(1)
		m.detectNanos.Add(uint64(time.Since(detectStart).Nanoseconds()))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.detectErrors.Add(1)
			detectLog.Do(func() {
				log.Printf("detector: %v (%d errors so far)", err, m.detectErrors.Load())
			})
			continue
		}

		publisher.Publish(frame.Seq, detection)
		if err := recorder.Tick(sender); err != nil {
			m.recordErrors.Add(1)
			recordLog.Do(func() { log.Printf("record announcement: %v", err) })
		}
		processed := m.framesProcessed.Add(1)

		if cfg.LogEvery > 0 && processed%uint64(cfg.LogEvery) == 0 {
			stats := source.Stats()
			log.Printf("frames=%d captured=%d dropped=%d detect_err=%d", processed, stats.FramesCaptured, stats.FramesDropped, m.detectErrors.Load())
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func openCapture(cfg config.AppConfig) (framesource.Capture, error) {
	if cfg.Debug {
		return framesource.NewSynthetic(framesource.SyntheticConfig{
			Width:  cfg.FrameWidth,
			Height: cfg.FrameHeight,
			FPS:    cfg.DebugFPS,
			Length: cfg.DebugFrames,
		}), nil
	}
	return framesource.OpenVideo(cfg.Source)
}

func closeRawLog(channel *osc.Channel, rawLog *output.RawLogWriter) {
	if rawLog == nil {
		return
	}
	channel.SetRecorder(nil)
	if err := rawLog.Close(); err != nil {
		log.Printf("raw log close failed: %v", err)
	} else {
		log.Printf("raw log: %d messages written", rawLog.Count())
	}
}
