package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Host       string `yaml:"host"`
	SendPort   int    `yaml:"send_port"`
	ListenPort int    `yaml:"listen_port"`

	// Source is a capture device index or a video path/URL.
	Source      string  `yaml:"source"`
	Debug       bool    `yaml:"debug"`
	DebugFPS    float64 `yaml:"debug_fps"`
	DebugFrames int     `yaml:"debug_frames"`
	FrameWidth  int     `yaml:"frame_width"`
	FrameHeight int     `yaml:"frame_height"`

	DetectorEndpoint       string        `yaml:"detector_endpoint"`
	DetectorTimeout        time.Duration `yaml:"detector_timeout"`
	MinDetectionConfidence float64       `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64       `yaml:"min_tracking_confidence"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	SkipHandshake    bool          `yaml:"skip_handshake"`
	Record           bool          `yaml:"record"`

	Port      int    `yaml:"http_port"`
	RawLog    bool   `yaml:"raw_log"`
	OutputDir string `yaml:"output_dir"`

	MQTTBroker string `yaml:"mqtt_broker"`
	MQTTTopic  string `yaml:"mqtt_topic"`

	LogEvery int `yaml:"log_every"`
}

func Default() AppConfig {
	return AppConfig{
		Host:                   "127.0.0.1",
		SendPort:               9100,
		ListenPort:             7300,
		Source:                 "0",
		DebugFPS:               30,
		DebugFrames:            300,
		FrameWidth:             640,
		FrameHeight:            480,
		DetectorEndpoint:       "tcp://127.0.0.1:5555",
		DetectorTimeout:        time.Second,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		HandshakeTimeout:       5 * time.Second,
		Port:                   8080,
		OutputDir:              "output",
		MQTTTopic:              "handosc/landmarks",
		LogEvery:               300,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c AppConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if !validPort(c.SendPort) {
		errs = append(errs, fmt.Errorf("send_port out of range: %d", c.SendPort))
	}
	if !validPort(c.ListenPort) {
		errs = append(errs, fmt.Errorf("listen_port out of range: %d", c.ListenPort))
	}
	if c.SendPort == c.ListenPort {
		errs = append(errs, fmt.Errorf("send_port and listen_port must differ, both are %d", c.SendPort))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("http_port out of range: %d", c.Port))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake_timeout must be positive"))
	}
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"min_detection_confidence", c.MinDetectionConfidence},
		{"min_tracking_confidence", c.MinTrackingConfidence},
	} {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %g", th.name, th.value))
		}
	}
	if c.Debug && c.DebugFPS <= 0 {
		errs = append(errs, errors.New("debug_fps must be positive"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
