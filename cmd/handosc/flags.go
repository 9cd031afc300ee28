package main

import (
	"flag"
	"strings"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/config"
)

// configPath finds -config before the full flag set is parsed, so that file
// values become the defaults the remaining flags override.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return ""
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func bindFlags(fs *flag.FlagSet, cfg *config.AppConfig) {
	fs.String("config", "", "YAML config file; flags override its values")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Address of the OSC peer")
	fs.IntVar(&cfg.SendPort, "send-port", cfg.SendPort, "Peer port receiving telemetry")
	fs.IntVar(&cfg.ListenPort, "listen-port", cfg.ListenPort, "Local port receiving the peer's replies")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Capture device index, video file or stream URL")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Use a synthetic video and simulated detector")
	fs.Float64Var(&cfg.DebugFPS, "debug-fps", cfg.DebugFPS, "Synthetic video frame rate")
	fs.IntVar(&cfg.DebugFrames, "debug-frames", cfg.DebugFrames, "Synthetic video length before it loops (0 = live)")
	fs.StringVar(&cfg.DetectorEndpoint, "detector", cfg.DetectorEndpoint, "ZMQ endpoint of the landmark sidecar")
	fs.DurationVar(&cfg.DetectorTimeout, "detector-timeout", cfg.DetectorTimeout, "Per-frame detector timeout")
	fs.Float64Var(&cfg.MinDetectionConfidence, "min-detection-confidence", cfg.MinDetectionConfidence, "Minimum hand detection confidence")
	fs.Float64Var(&cfg.MinTrackingConfidence, "min-tracking-confidence", cfg.MinTrackingConfidence, "Minimum hand tracking confidence")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "How long to wait for the peer's /connect reply")
	fs.BoolVar(&cfg.SkipHandshake, "skip-handshake", cfg.SkipHandshake, "Send telemetry without confirming the peer")
	fs.BoolVar(&cfg.Record, "record", cfg.Record, "Announce recording to the peer from the first frame")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port for the live view (0 disables it)")
	fs.BoolVar(&cfg.RawLog, "raw-log", cfg.RawLog, "Write every OSC message to a CBOR log")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for raw logs")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "Mirror telemetry to this MQTT broker (e.g. tcp://localhost:1883)")
	fs.StringVar(&cfg.MQTTTopic, "mqtt-topic", cfg.MQTTTopic, "MQTT topic for mirrored frames")
	fs.IntVar(&cfg.LogEvery, "log-every", cfg.LogEvery, "Log pipeline stats every N frames (0 disables)")
}
